package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"freecal/internal/config"
	appLog "freecal/internal/log"
	"freecal/internal/metrics"
	"freecal/internal/query"
)

// loadRetryInterval spaces out on-demand loads triggered by reads while a
// source stays unloaded. The scheduled refresh keeps retrying regardless.
const loadRetryInterval = 30 * time.Second

// Server exposes the week/day availability views and friend selection as
// a JSON API. It performs no rendering.
type Server struct {
	cfg       *config.Config
	mux       *http.ServeMux
	session   *query.Session
	loader    *query.Loader
	metrics   *metrics.Metrics
	loadRetry *rate.Limiter
	now       func() time.Time
}

// NewServer constructs a new Server. m may be nil.
func NewServer(cfg *config.Config, session *query.Session, loader *query.Loader, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		mux:       http.NewServeMux(),
		session:   session,
		loader:    loader,
		metrics:   m,
		loadRetry: rate.NewLimiter(rate.Every(loadRetryInterval), 1),
		now:       time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/week", s.handleWeek)
	s.mux.HandleFunc("POST /api/week/prev", s.handleNavigate(func() query.Request { return s.session.PreviousWeek() }))
	s.mux.HandleFunc("POST /api/week/next", s.handleNavigate(func() query.Request { return s.session.NextWeek() }))
	s.mux.HandleFunc("POST /api/week/today", s.handleNavigate(func() query.Request { return s.session.JumpToToday(s.now()) }))
	s.mux.HandleFunc("GET /api/day/{index}", s.handleDay)
	s.mux.HandleFunc("GET /api/friends", s.handleFriends)
	s.mux.HandleFunc("PUT /api/friends/selected", s.handleSelectFriends)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="freecal", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleWeek returns the current week, loading it first if needed.
func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	s.ensureLoaded(r.Context())
	writeJSON(w, http.StatusOK, s.session.Week())
}

// handleNavigate replaces the query window, loads it and returns the new
// week. If another navigation overtook this one, the newer state is shown.
func (s *Server) handleNavigate(move func() query.Request) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := move()
		if _, err := s.loader.Load(r.Context(), s.session, req); err != nil {
			appLog.Warn("api navigate: load incomplete", "path", r.URL.Path, "cause", err)
		}
		writeJSON(w, http.StatusOK, s.session.Week())
	}
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "day index must be an integer 0-6")
		return
	}
	s.ensureLoaded(r.Context())
	day, err := s.session.Day(idx)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, day)
}

type friendDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

type friendsResponse struct {
	Friends  []friendDTO `json:"friends"`
	Selected []string    `json:"selected"`
	// Active is the friend actually overlaid (the first selected).
	Active string `json:"active,omitempty"`
}

func (s *Server) friendsResponse() friendsResponse {
	sel := s.session.Selection()
	out := friendsResponse{
		Friends:  make([]friendDTO, 0, len(s.cfg.Friends)),
		Selected: sel.IDs(),
		Active:   sel.First(),
	}
	for _, fr := range s.cfg.Friends {
		name := fr.Name
		if name == "" {
			name = fr.ID
		}
		out.Friends = append(out.Friends, friendDTO{ID: fr.ID, Name: name, Selected: sel.Has(fr.ID)})
	}
	return out
}

func (s *Server) handleFriends(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.friendsResponse())
}

type selectFriendsRequest struct {
	IDs []string `json:"ids"`
}

// handleSelectFriends replaces the selection and reloads with the new
// first friend. An empty list clears the selection.
func (s *Server) handleSelectFriends(w http.ResponseWriter, r *http.Request) {
	var body selectFriendsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for _, id := range body.IDs {
		if _, ok := s.cfg.Friend(id); !ok {
			writeError(w, http.StatusBadRequest, "unknown friend: "+id)
			return
		}
	}

	s.session.Selection().Replace(body.IDs)
	req := s.session.FriendsChanged()
	if _, err := s.loader.Load(r.Context(), s.session, req); err != nil {
		appLog.Warn("api select friends: load incomplete", "friend", req.FriendID, "cause", err)
	}
	writeJSON(w, http.StatusOK, s.friendsResponse())
}

// ensureLoaded loads the current query if some source is missing, at most
// once per loadRetryInterval.
func (s *Server) ensureLoaded(ctx context.Context) {
	if s.session.Loaded() {
		return
	}
	if !s.loadRetry.Allow() {
		appLog.Debug("api: load retry throttled", "every", loadRetryInterval)
		return
	}
	if _, err := s.loader.Refresh(ctx, s.session); err != nil {
		appLog.Warn("api: load incomplete", "cause", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
