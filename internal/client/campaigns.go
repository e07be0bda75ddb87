package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pagereach/cps-client/internal/model"
)

type createCampaignRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// CreateCampaign registers a draft campaign and returns it. The returned id
// is not necessarily the id the run will report progress under; see
// StartSubmissions.
func (c *Client) CreateCampaign(ctx context.Context, name, message string) (*model.Campaign, error) {
	var out model.Campaign
	if err := c.doJSON(ctx, http.MethodPost, "/campaigns", createCampaignRequest{Name: name, Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCampaigns fetches the caller's campaigns.
func (c *Client) ListCampaigns(ctx context.Context) ([]model.Campaign, error) {
	var out struct {
		Data []model.Campaign `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/campaigns", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// GetCampaign fetches one campaign by id.
func (c *Client) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var out model.Campaign
	if err := c.doJSON(ctx, http.MethodGet, "/campaigns/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopCampaign asks the backend to halt a running campaign.
func (c *Client) StopCampaign(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/campaigns/"+id+"/stop", nil, nil)
}

// StartCampaign resumes a stopped campaign.
func (c *Client) StartCampaign(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, "/campaigns/"+id+"/start", nil, nil)
}

// ExportReport streams the campaign's CSV report into w.
func (c *Client) ExportReport(ctx context.Context, id string, w io.Writer) error {
	path := "/campaigns/" + id + "/export"
	resp, cancel, err := c.do(ctx, http.MethodGet, path, nil, "", UploadTimeout)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading report for campaign %s: %w", id, err)
	}
	return nil
}
