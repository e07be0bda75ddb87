package stub_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagereach/cps-client/internal/apierrors"
	"github.com/pagereach/cps-client/internal/client"
	"github.com/pagereach/cps-client/internal/ingest"
	"github.com/pagereach/cps-client/internal/model"
	"github.com/pagereach/cps-client/internal/service"
	"github.com/pagereach/cps-client/internal/stub"
)

func newStubClient(t *testing.T, opts stub.Options) *client.Client {
	t.Helper()
	if opts.TickEvery == 0 {
		opts.TickEvery = time.Millisecond
	}
	if opts.SuccessRate == 0 {
		opts.SuccessRate = 1.0
	}
	server := httptest.NewServer(stub.NewServer(opts).Router())
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{
		BaseURL: server.URL,
		Tokens:  client.NewMemoryTokenStore(),
	})
	require.NoError(t, err)
	return c
}

const sampleCSV = "Website,Email\nhttp://a.com,a@a.com\nhttp://b.com,b@b.com\nhttp://c.com,c@c.com\n"

func ingestSample(t *testing.T) *model.ParsedCSV {
	t.Helper()
	parsed, err := ingest.Ingest("sites.csv", int64(len(sampleCSV)), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	return parsed
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	c := newStubClient(t, stub.Options{})
	_, err := c.ListCampaigns(context.Background())
	require.Error(t, err)
	assert.True(t, apierrors.IsSessionExpired(err))
}

func TestRegisterLoginAndMe(t *testing.T) {
	c := newStubClient(t, stub.Options{})
	ctx := context.Background()

	resp, err := c.Register(ctx, "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, model.RoleUser, resp.User.Role)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", me.Email)

	// Duplicate registration conflicts.
	_, err = c.Register(ctx, "alice@example.com", "other")
	httpErr, ok := apierrors.AsHTTP(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, httpErr.StatusCode)

	// Bad credentials come back as a plain 401, token untouched.
	_, err = c.Login(ctx, "alice@example.com", "wrong")
	httpErr, ok = apierrors.AsHTTP(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)

	me, err = c.Me(ctx)
	require.NoError(t, err, "failed login must not invalidate the session")
	assert.Equal(t, "alice@example.com", me.Email)
}

func TestLaunchPollAndExportEndToEnd(t *testing.T) {
	c := newStubClient(t, stub.Options{})
	ctx := context.Background()

	_, err := c.Register(ctx, "bob@example.com", "pw")
	require.NoError(t, err)

	launcher := &service.Launcher{API: c}
	result, err := launcher.Launch(ctx, service.LaunchRequest{
		CSV:  ingestSample(t),
		Name: "spring outreach",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalURLs)
	assert.NotEqual(t, result.CreatedID, result.CampaignID,
		"the run reports under the start-call id, not the draft id")

	completions := 0
	poller := &service.Poller{
		API:         c,
		Interval:    2 * time.Millisecond,
		OnCompleted: func(model.ProgressSnapshot) { completions++ },
	}
	require.NoError(t, poller.Run(ctx, result.CampaignID))
	assert.Equal(t, service.PollCompleted, poller.State())
	assert.Equal(t, 1, completions)

	final, ok := poller.Latest()
	require.True(t, ok)
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 3, final.Processed)
	assert.Equal(t, 3, final.Successful)
	assert.Equal(t, 0, final.Pending)
	assert.InDelta(t, 100.0, final.ProgressPercent, 0.01)
	assert.True(t, model.StatusCompleted.Matches(final.Status))

	var report bytes.Buffer
	require.NoError(t, c.ExportReport(ctx, result.CampaignID, &report))
	assert.Contains(t, report.String(), "url,result")
	assert.Contains(t, report.String(), "http://a.com,success")

	// Both the orphaned draft and the run show up in the listing.
	campaigns, err := c.ListCampaigns(ctx)
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	statuses := []model.Status{
		model.ParseStatus(campaigns[0].Status),
		model.ParseStatus(campaigns[1].Status),
	}
	assert.Contains(t, statuses, model.StatusCompleted)
	assert.Contains(t, statuses, model.StatusDraft)
}

func TestStopEndsARunningCampaign(t *testing.T) {
	// Slow ticks so the run is still in flight when we stop it.
	c := newStubClient(t, stub.Options{TickEvery: 10 * time.Millisecond})
	ctx := context.Background()

	_, err := c.Register(ctx, "carol@example.com", "pw")
	require.NoError(t, err)

	var csv strings.Builder
	csv.WriteString("url\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&csv, "http://site-%d.com\n", i)
	}
	parsed, err := ingest.Ingest("big.csv", int64(csv.Len()), strings.NewReader(csv.String()))
	require.NoError(t, err)

	launcher := &service.Launcher{API: c}
	result, err := launcher.Launch(ctx, service.LaunchRequest{CSV: parsed, Name: "long run"})
	require.NoError(t, err)

	require.NoError(t, c.StopCampaign(ctx, result.CampaignID))

	terminals := 0
	poller := &service.Poller{
		API:        c,
		Interval:   2 * time.Millisecond,
		OnTerminal: func(model.ProgressSnapshot) { terminals++ },
	}
	require.NoError(t, poller.Run(ctx, result.CampaignID))
	assert.Equal(t, service.PollStopped, poller.State())
	assert.Equal(t, 1, terminals)

	snap, err := c.SubmissionStatus(ctx, result.CampaignID)
	require.NoError(t, err)
	assert.True(t, model.StatusStopped.Matches(snap.Status))
	assert.Less(t, snap.Processed, snap.Total)
}

func TestStatusForUnknownCampaignIs404(t *testing.T) {
	c := newStubClient(t, stub.Options{})
	ctx := context.Background()
	_, err := c.Register(ctx, "dave@example.com", "pw")
	require.NoError(t, err)

	_, err = c.SubmissionStatus(ctx, "no-such-id")
	httpErr, ok := apierrors.AsHTTP(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestStartSubmissionsRejectsBadCSV(t *testing.T) {
	c := newStubClient(t, stub.Options{})
	ctx := context.Background()
	_, err := c.Register(ctx, "erin@example.com", "pw")
	require.NoError(t, err)

	_, err = c.StartSubmissions(ctx, client.StartSubmissionsRequest{
		FileName: "contacts.csv",
		File:     strings.NewReader("Name,Phone\nJohn,555-1111\n"),
	})
	httpErr, ok := apierrors.AsHTTP(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, httpErr.StatusCode)
	assert.Contains(t, httpErr.Message, "website")
}
