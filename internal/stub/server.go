package stub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/apierrors"
	"github.com/pagereach/cps-client/internal/ingest"
	"github.com/pagereach/cps-client/internal/model"
	"github.com/pagereach/cps-client/internal/queue"
)

// Server is an in-memory stand-in for the Contact Page Submitter backend.
// It implements exactly the REST surface the client consumes, backed by the
// Store and a queue-driven crawl simulator instead of a real crawler.
type Server struct {
	store *Store
	queue queue.Queue
	log   *zap.Logger
}

// Options tune the simulated crawl.
type Options struct {
	// TickEvery is the simulated per-URL processing time.
	TickEvery time.Duration
	// SuccessRate is the fraction of URLs that succeed.
	SuccessRate float64
	Logger      *zap.Logger
}

// NewServer wires a store, queue and simulator together.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	store := NewStore()
	q := queue.NewInMemory(opts.Logger)
	sim := &Simulator{
		Store:       store,
		TickEvery:   opts.TickEvery,
		SuccessRate: opts.SuccessRate,
		Log:         opts.Logger,
	}
	sim.Attach(q)
	return &Server{store: store, queue: q, log: opts.Logger}
}

// Router builds the chi route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/auth/me", s.handleMe)
		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/stop", s.handleStopCampaign)
		r.Post("/campaigns/{id}/start", s.handleResumeCampaign)
		r.Get("/campaigns/{id}/export", s.handleExport)
		r.Post("/submissions/start", s.handleStartSubmissions)
		r.Get("/submissions/status/{id}", s.handleSubmissionStatus)
	})

	return r
}

type ctxKey string

const userKey ctxKey = "user"

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, found := s.store.UserForToken(token)
		if !found {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func currentUser(r *http.Request) *model.User {
	u, _ := r.Context().Value(userKey).(*model.User)
	return u
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	resp, err := s.store.Login(body.Email, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.Email) == "" || body.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "email and password are required")
		return
	}
	resp, err := s.store.Register(body.Email, body.Password)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "campaign name is required")
		return
	}
	campaign := s.store.CreateCampaign(currentUser(r).ID, body.Name, body.Message)
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns := s.store.ListCampaigns(currentUser(r).ID)
	writeJSON(w, http.StatusOK, map[string]any{"data": campaigns})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.store.GetCampaign(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *Server) handleStopCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetStatus(id, model.StatusStopped); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetStatus(id, model.StatusActive); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.queue.Publish(TopicCampaignRuns, id); err != nil {
		s.log.Warn("failed to requeue campaign", zap.String("campaign_id", id), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleStartSubmissions accepts the multipart upload, counts the URLs, and
// starts a simulated run. The run gets its own campaign id, separate from
// any draft created beforehand — mirroring the production backend, which
// reports progress under the id this endpoint returns.
func (s *Server) handleStartSubmissions(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(ingest.MaxFileSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "file field is required")
		return
	}
	defer file.Close()

	parsed, err := ingest.Ingest(header.Filename, header.Size, file)
	if err != nil {
		if apierrors.IsValidation(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := currentUser(r)
	name := "uploaded run"
	message := ""
	if draft, ok := s.store.LatestDraft(user.ID); ok {
		name = draft.Name
		message = draft.Message
	}

	urls := urlsFromCSV(parsed)
	campaign := s.store.StartRun(user.ID, name, message, urls)

	s.log.Info("submission run started",
		zap.String("campaign_id", campaign.ID),
		zap.Int("total_urls", campaign.TotalURLs),
		zap.String("proxy", r.FormValue("proxy")),
		zap.String("halt_on_captcha", r.FormValue("haltOnCaptcha")))

	if err := s.queue.Publish(TopicCampaignRuns, campaign.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"campaign_id": campaign.ID,
		"total_urls":  campaign.TotalURLs,
	})
}

func (s *Server) handleSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := s.store.Report(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "campaign-"+id+".csv"))
	fmt.Fprintln(w, "url,result")
	for _, row := range rows {
		fmt.Fprintf(w, "%s,%s\n", row[0], row[1])
	}
}

// urlsFromCSV pulls every non-blank URL cell out of the parsed file, padding
// with placeholders so the run total always matches the reported row count.
func urlsFromCSV(parsed *model.ParsedCSV) []string {
	urls := make([]string, 0, parsed.TotalRows)
	lines := strings.Split(string(parsed.Raw), "\n")
	dataSeen := false
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !dataSeen {
			dataSeen = true // header row
			continue
		}
		cells := strings.Split(line, ",")
		url := ""
		if parsed.URLColumnIndex < len(cells) {
			url = strings.TrimSpace(strings.Trim(strings.TrimSpace(cells[parsed.URLColumnIndex]), `"'`))
		}
		if url == "" {
			url = "(blank)"
		}
		urls = append(urls, url)
	}
	return urls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
