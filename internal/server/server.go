// Package server exposes the dashboard views as a JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/KaramelBytes/clientscope-cli/internal/dashboard"
	"github.com/KaramelBytes/clientscope-cli/internal/dataset"
	"github.com/KaramelBytes/clientscope-cli/internal/explain"
	"github.com/KaramelBytes/clientscope-cli/internal/report"
	"github.com/KaramelBytes/clientscope-cli/internal/scoring"
	"github.com/KaramelBytes/clientscope-cli/internal/session"
	"github.com/KaramelBytes/clientscope-cli/internal/stats"
)

// Server routes API requests to a Dashboard, one in-memory session per UUID.
type Server struct {
	dash     *dashboard.Dashboard
	sessions *session.Registry
	origins  []string
}

// New builds a Server. An empty origins list allows every origin.
func New(d *dashboard.Dashboard, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{dash: d, sessions: session.NewRegistry(), origins: origins}
}

// Sessions exposes the registry, mainly for tests.
func (s *Server) Sessions() *session.Registry { return s.sessions }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/dataset", s.overview)
		r.Get("/importance", s.importance)
		r.Post("/sessions", s.createSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Use(s.withSession)
			r.Delete("/", s.deleteSession)
			r.Put("/selection", s.selectClient)
			r.Get("/client", s.client)
			r.Get("/compare/{column}", s.compare)
			r.Get("/bivariate", s.bivariate)
			r.Get("/extremes", s.extremes)
			r.Get("/explain", s.explain)
			r.Post("/predict", s.predict)
			r.Get("/report", s.report)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	zap.L().Info("api listening", zap.String("addr", addr))
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type ctxKey struct{}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "session_not_found", "unknown session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *session.Session {
	return r.Context().Value(ctxKey{}).(*session.Session)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: kind, Message: msg})
}

// fail maps engine errors to HTTP statuses.
func fail(w http.ResponseWriter, err error) {
	var (
		le *dataset.LoadError
		se *dataset.InvalidSelectionError
		ue *scoring.UnavailableError
		ve *scoring.ServiceError
		ee *explain.Error
	)
	switch {
	case errors.As(err, &le):
		writeError(w, http.StatusServiceUnavailable, "data_load", err.Error())
	case errors.As(err, &se):
		writeError(w, http.StatusConflict, "invalid_selection", err.Error())
	case errors.As(err, &ue):
		writeError(w, http.StatusServiceUnavailable, "scoring_unavailable", err.Error())
	case errors.As(err, &ve):
		writeError(w, http.StatusBadGateway, "scoring_service", err.Error())
	case errors.As(err, &ee):
		writeError(w, http.StatusUnprocessableEntity, "explainability", err.Error())
	case errors.Is(err, stats.ErrUnknownColumn):
		writeError(w, http.StatusNotFound, "unknown_column", err.Error())
	case errors.Is(err, stats.ErrNotNumeric):
		writeError(w, http.StatusBadRequest, "not_numeric", err.Error())
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func intQuery(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) overview(w http.ResponseWriter, _ *http.Request) {
	ov, err := s.dash.Overview()
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

func (s *Server) importance(w http.ResponseWriter, r *http.Request) {
	top, err := intQuery(r, "top")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "top must be an integer")
		return
	}
	imp, err := s.dash.Importance(r.Context(), top)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, imp)
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID.String()})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.sessions.Delete(sessionFrom(r).ID.String())
	w.WriteHeader(http.StatusNoContent)
}

type selectionRequest struct {
	Key        *int   `json:"key"`
	ExternalID string `json:"external_id"`
}

type selectionResponse struct {
	Key        int    `json:"key"`
	ExternalID string `json:"external_id"`
}

func (s *Server) selectClient(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	sess := sessionFrom(r)
	var err error
	switch {
	case req.Key != nil:
		err = s.dash.Select(sess, *req.Key)
	case req.ExternalID != "":
		_, err = s.dash.SelectExternal(sess, req.ExternalID)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "key or external_id is required")
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	key, ext, _ := sess.Selection()
	writeJSON(w, http.StatusOK, selectionResponse{Key: key, ExternalID: ext})
}

type clientResponse struct {
	Key        int                   `json:"key"`
	ExternalID string                `json:"external_id"`
	Attributes dataset.FeatureRecord `json:"attributes"`
}

func (s *Server) client(w http.ResponseWriter, r *http.Request) {
	rec, err := s.dash.Client(sessionFrom(r))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clientResponse{Key: rec.Key, ExternalID: rec.ExternalID, Attributes: rec})
}

func (s *Server) compare(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.dash.Compare(sessionFrom(r), chi.URLParam(r, "column"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) bivariate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("x") == "" || q.Get("y") == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "x and y are required")
		return
	}
	v, err := s.dash.Bivariate(sessionFrom(r), q.Get("x"), q.Get("y"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) extremes(w http.ResponseWriter, r *http.Request) {
	k, err := intQuery(r, "k")
	if err != nil || k < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "k must be a non-negative integer")
		return
	}
	ex, err := s.dash.Extremes(sessionFrom(r), k)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) explain(w http.ResponseWriter, r *http.Request) {
	top, err := intQuery(r, "top")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "top must be an integer")
		return
	}
	loc, err := s.dash.Explain(r.Context(), sessionFrom(r), top)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	p, err := s.dash.Predict(r.Context(), sessionFrom(r))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rep, err := report.Build(r.Context(), s.dash, sessionFrom(r), report.BuildOptions{
		Score:   q.Get("score") == "true",
		Explain: q.Get("explain") != "false",
	})
	if err != nil {
		fail(w, err)
		return
	}
	md := rep.Markdown()
	if q.Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write([]byte(md))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(report.HTML(md, "Client "+rep.Record.ExternalID))
}
