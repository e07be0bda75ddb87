package client

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/pagereach/cps-client/internal/model"
)

// StartSubmissionsRequest is the multipart payload for /submissions/start.
type StartSubmissionsRequest struct {
	FileName      string
	File          io.Reader
	Proxy         string
	HaltOnCaptcha bool
}

// StartSubmissionsResponse carries the authoritative campaign id and URL
// count for the run that actually started.
type StartSubmissionsResponse struct {
	Success    bool   `json:"success"`
	CampaignID string `json:"campaign_id"`
	TotalURLs  int    `json:"total_urls"`
}

// StartSubmissions uploads the CSV and starts crawling. Uses the longer
// upload timeout.
func (c *Client) StartSubmissions(ctx context.Context, req StartSubmissionsRequest) (*StartSubmissionsResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", req.FileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, err
	}
	if err := mw.WriteField("proxy", req.Proxy); err != nil {
		return nil, err
	}
	if err := mw.WriteField("haltOnCaptcha", strconv.FormatBool(req.HaltOnCaptcha)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, cancel, err := c.do(ctx, http.MethodPost, "/submissions/start", &buf, mw.FormDataContentType(), UploadTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	var out StartSubmissionsResponse
	if err := decodeJSON(resp.Body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmissionStatus fetches the current progress snapshot for a campaign.
func (c *Client) SubmissionStatus(ctx context.Context, campaignID string) (*model.ProgressSnapshot, error) {
	var out model.ProgressSnapshot
	if err := c.doJSON(ctx, http.MethodGet, "/submissions/status/"+campaignID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
