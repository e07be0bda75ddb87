package stub

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagereach/cps-client/internal/model"
)

// Store is the in-memory state behind the stub backend: accounts, bearer
// tokens, campaigns and their per-URL results. It replaces the production
// service's Postgres layer so the stub runs with zero infrastructure.
type Store struct {
	mu        sync.Mutex
	users     map[string]*account // by email
	tokens    map[string]string   // token -> user id
	campaigns map[string]*campaignState
	order     []string // campaign ids, creation order
}

type account struct {
	User     model.User
	Password string
}

type campaignState struct {
	Campaign model.Campaign
	OwnerID  string
	URLs     []string
	Results  []string // "", "success" or "failed" per URL
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]*account),
		tokens:    make(map[string]string),
		campaigns: make(map[string]*campaignState),
	}
}

var (
	errDuplicateEmail = fmt.Errorf("an account with this email already exists")
	errBadCredentials = fmt.Errorf("invalid email or password")
	errNotFound       = fmt.Errorf("campaign not found")
)

// Register creates an account and a session token.
func (s *Store) Register(email, password string) (*model.AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[email]; exists {
		return nil, errDuplicateEmail
	}
	acct := &account{
		User: model.User{
			ID:        uuid.NewString(),
			Email:     email,
			Role:      model.RoleUser,
			CreatedAt: time.Now().UTC(),
		},
		Password: password,
	}
	s.users[email] = acct
	token := uuid.NewString()
	s.tokens[token] = acct.User.ID
	return &model.AuthResponse{AccessToken: token, User: acct.User}, nil
}

// Login checks credentials and issues a fresh token.
func (s *Store) Login(email, password string) (*model.AuthResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.users[email]
	if !ok || acct.Password != password {
		return nil, errBadCredentials
	}
	token := uuid.NewString()
	s.tokens[token] = acct.User.ID
	return &model.AuthResponse{AccessToken: token, User: acct.User}, nil
}

// UserForToken resolves a bearer token to its user.
func (s *Store) UserForToken(token string) (*model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[token]
	if !ok {
		return nil, false
	}
	for _, acct := range s.users {
		if acct.User.ID == userID {
			u := acct.User
			return &u, true
		}
	}
	return nil, false
}

// CreateCampaign stores a draft.
func (s *Store) CreateCampaign(ownerID, name, message string) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &campaignState{
		Campaign: model.Campaign{
			ID:        uuid.NewString(),
			Name:      name,
			Message:   message,
			Status:    model.StatusDraft.String(),
			CreatedAt: time.Now().UTC(),
		},
		OwnerID: ownerID,
	}
	s.campaigns[c.Campaign.ID] = c
	s.order = append(s.order, c.Campaign.ID)
	out := c.Campaign
	return &out
}

// LatestDraft returns the owner's most recent draft campaign, if any. The
// start endpoint uses it to name the run it creates.
func (s *Store) LatestDraft(ownerID string) (*model.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.campaigns[s.order[i]]
		if c.OwnerID == ownerID && model.ParseStatus(c.Campaign.Status) == model.StatusDraft {
			out := c.Campaign
			return &out, true
		}
	}
	return nil, false
}

// StartRun creates the campaign a submission run actually reports under,
// deliberately distinct from any draft created beforehand.
func (s *Store) StartRun(ownerID, name, message string, urls []string) *model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &campaignState{
		Campaign: model.Campaign{
			ID:        uuid.NewString(),
			Name:      name,
			Message:   message,
			Status:    model.StatusActive.String(),
			TotalURLs: len(urls),
			CreatedAt: time.Now().UTC(),
		},
		OwnerID: ownerID,
		URLs:    urls,
		Results: make([]string, len(urls)),
	}
	s.campaigns[c.Campaign.ID] = c
	s.order = append(s.order, c.Campaign.ID)
	out := c.Campaign
	return &out
}

// GetCampaign fetches one campaign.
func (s *Store) GetCampaign(id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, errNotFound
	}
	out := c.Campaign
	return &out, nil
}

// ListCampaigns returns the owner's campaigns, newest first.
func (s *Store) ListCampaigns(ownerID string) []model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Campaign{}
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.campaigns[s.order[i]]
		if c.OwnerID == ownerID {
			out = append(out, c.Campaign)
		}
	}
	return out
}

// SetStatus transitions a campaign.
func (s *Store) SetStatus(id string, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return errNotFound
	}
	now := time.Now().UTC()
	c.Campaign.Status = status.String()
	c.Campaign.UpdatedAt = &now
	return nil
}

// Status reads the normalized status of a campaign.
func (s *Store) Status(id string) (model.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return model.StatusUnknown, errNotFound
	}
	return model.ParseStatus(c.Campaign.Status), nil
}

// RecordResult marks the next unprocessed URL as done and reports how many
// remain. When the last URL is recorded the campaign flips to completed.
func (s *Store) RecordResult(id string, ok bool) (remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.campaigns[id]
	if !found {
		return 0, errNotFound
	}
	if c.Campaign.ProcessedCount >= c.Campaign.TotalURLs {
		return 0, nil
	}
	result := "failed"
	if ok {
		result = "success"
		c.Campaign.SuccessCount++
	} else {
		c.Campaign.FailCount++
	}
	c.Results[c.Campaign.ProcessedCount] = result
	c.Campaign.ProcessedCount++

	remaining = c.Campaign.TotalURLs - c.Campaign.ProcessedCount
	if remaining == 0 {
		now := time.Now().UTC()
		c.Campaign.Status = model.StatusCompleted.String()
		c.Campaign.UpdatedAt = &now
	}
	return remaining, nil
}

// Snapshot builds the progress view the status endpoint serves.
func (s *Store) Snapshot(id string) (*model.ProgressSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, errNotFound
	}
	snap := &model.ProgressSnapshot{
		CampaignID: c.Campaign.ID,
		Total:      c.Campaign.TotalURLs,
		Processed:  c.Campaign.ProcessedCount,
		Successful: c.Campaign.SuccessCount,
		Failed:     c.Campaign.FailCount,
		Pending:    c.Campaign.TotalURLs - c.Campaign.ProcessedCount,
		Status:     c.Campaign.Status,
	}
	if snap.Total > 0 {
		snap.ProgressPercent = float64(snap.Processed) / float64(snap.Total) * 100
	}
	return snap, nil
}

// Report lists per-URL outcomes for the export endpoint.
func (s *Store) Report(id string) ([][2]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, errNotFound
	}
	rows := make([][2]string, len(c.URLs))
	for i, u := range c.URLs {
		result := c.Results[i]
		if result == "" {
			result = "pending"
		}
		rows[i] = [2]string{u, result}
	}
	return rows, nil
}
