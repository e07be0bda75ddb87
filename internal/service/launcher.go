package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/apierrors"
	"github.com/pagereach/cps-client/internal/client"
	"github.com/pagereach/cps-client/internal/model"
)

// DefaultMessageTemplate is used when the user leaves the message blank.
const DefaultMessageTemplate = "Hello, I recently came across your website and would love to get in touch about a potential collaboration. Please reply at your convenience."

// LaunchAPI is the slice of the backend client the launcher needs.
type LaunchAPI interface {
	CreateCampaign(ctx context.Context, name, message string) (*model.Campaign, error)
	StartSubmissions(ctx context.Context, req client.StartSubmissionsRequest) (*client.StartSubmissionsResponse, error)
}

// Launcher drives the two backend calls that take a validated CSV to a
// running campaign: create the draft, then upload and start. It is
// single-shot per user action; concurrent Launch calls are rejected.
type Launcher struct {
	API LaunchAPI
	Log *zap.Logger

	inFlight atomic.Bool
}

// ErrLaunchInFlight is returned when Launch is called while a previous
// attempt has not resolved yet. The backend accepts one active campaign at a
// time, so re-entry must be blocked rather than queued.
var ErrLaunchInFlight = errors.New("a launch is already in progress")

// StartFailedError means the draft was created but the start call failed.
// There is no compensation: the draft campaign is left behind server-side
// (known gap in the backend contract), and the caller may retry.
type StartFailedError struct {
	DraftID string
	Err     error
}

func (e *StartFailedError) Error() string {
	return fmt.Sprintf("starting submissions failed (draft campaign %s was created and remains on the server): %v", e.DraftID, e.Err)
}

func (e *StartFailedError) Unwrap() error {
	return e.Err
}

// LaunchRequest is everything the user supplies on the campaign form.
type LaunchRequest struct {
	CSV           *model.ParsedCSV
	Name          string
	Message       string
	Proxy         string
	HaltOnCaptcha bool
}

// LaunchResult reports a successful launch.
//
// CreatedID is the id from campaign creation; CampaignID is the id from the
// start call. The backend does not guarantee they match, and the start id is
// the one it reports progress under, so everything downstream (polling,
// stop, export) must use CampaignID.
type LaunchResult struct {
	CreatedID  string
	CampaignID string
	TotalURLs  int
	// Initial seeds the progress view before the first poll arrives.
	Initial model.ProgressSnapshot
}

// Launch runs the create+start sequence. A failure in create is terminal for
// the attempt with nothing to roll back; a failure in start returns
// *StartFailedError and leaves the launcher retryable.
func (l *Launcher) Launch(ctx context.Context, req LaunchRequest) (*LaunchResult, error) {
	if req.CSV == nil {
		return nil, apierrors.NewValidation("select and validate a CSV file first")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apierrors.NewValidation("campaign name is required")
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = DefaultMessageTemplate
	}

	if !l.inFlight.CompareAndSwap(false, true) {
		return nil, ErrLaunchInFlight
	}
	defer l.inFlight.Store(false)

	log := l.logger()

	created, err := l.API.CreateCampaign(ctx, name, message)
	if err != nil {
		log.Warn("campaign creation failed", zap.String("name", name), zap.Error(err))
		return nil, err
	}
	log.Info("draft campaign created", zap.String("id", created.ID), zap.String("name", name))

	resp, err := l.API.StartSubmissions(ctx, client.StartSubmissionsRequest{
		FileName:      req.CSV.FileName,
		File:          bytes.NewReader(req.CSV.Raw),
		Proxy:         req.Proxy,
		HaltOnCaptcha: req.HaltOnCaptcha,
	})
	if err != nil {
		log.Warn("submission start failed, draft left behind",
			zap.String("draft_id", created.ID), zap.Error(err))
		return nil, &StartFailedError{DraftID: created.ID, Err: err}
	}

	log.Info("campaign started",
		zap.String("campaign_id", resp.CampaignID),
		zap.Int("total_urls", resp.TotalURLs))

	return &LaunchResult{
		CreatedID:  created.ID,
		CampaignID: resp.CampaignID,
		TotalURLs:  resp.TotalURLs,
		Initial: model.ProgressSnapshot{
			CampaignID: resp.CampaignID,
			Total:      resp.TotalURLs,
			Processed:  0,
			Pending:    resp.TotalURLs,
			Status:     model.StatusActive.String(),
		},
	}, nil
}

func (l *Launcher) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
