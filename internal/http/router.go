package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/taskflow/internal/domain"
	"github.com/splax/taskflow/internal/repository"
	"github.com/splax/taskflow/internal/service/auth"
	"github.com/splax/taskflow/internal/service/task"
	"github.com/splax/taskflow/internal/service/user"
	"github.com/splax/taskflow/internal/ws"
	"github.com/splax/taskflow/pkg/config"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	cfg      config.APIConfig
	auth     auth.Service
	tasks    task.Service
	users    user.Service
	upgrader websocket.Upgrader
	limiter  RateLimiter
	dbHealth func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitRegister  = 5
	rateLimitLogin     = 12
	rateLimitUser      = 120
	rateLimitAdmin     = 60
	rateLimitWebsocket = 30
	healthCheckTimeout = 2 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, cfg config.APIConfig, authSvc auth.Service, taskSvc task.Service, userSvc user.Service, limiter RateLimiter, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		cfg:    cfg,
		auth:   authSvc,
		tasks:  taskSvc,
		users:  userSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:  limiter,
		dbHealth: dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/api/users/register", r.audit("register", r.withRateLimit("register", rateLimitRegister, rateWindowDefault, rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/api/users/login", r.audit("login", r.withRateLimit("login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/api/users/auth/google", r.audit("google_start", r.handleGoogleStart))
	r.mux.HandleFunc("/api/users/auth/google/callback", r.audit("google_callback", r.handleGoogleCallback))
	r.mux.HandleFunc("/api/users", r.audit("users", r.requireAdmin(r.withRateLimit("users", rateLimitAdmin, rateWindowDefault, r.rateLimitKeyUser, r.handleUsers))))
	r.mux.HandleFunc("/api/users/", r.audit("user", r.requireAdmin(r.withRateLimit("user", rateLimitAdmin, rateWindowDefault, r.rateLimitKeyUser, r.handleUserSubroutes))))
	r.mux.HandleFunc("/api/tasks", r.audit("tasks", r.handlerAuthRate("tasks", rateLimitUser, rateWindowDefault, r.handleTasks)))
	r.mux.HandleFunc("/api/tasks/", r.audit("task", r.handleTaskSubroutes))
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := r.auth.Register(req.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  userPayload(*account),
		"token": token,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account, token, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  userPayload(*account),
		"token": token,
	})
}

func (r *Router) handleGoogleStart(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	target, err := r.auth.ProviderStartURL()
	if err != nil {
		if errors.Is(err, auth.ErrProviderDisabled) {
			writeError(w, http.StatusServiceUnavailable, "third-party sign-in not configured")
			return
		}
		r.writeServiceError(w, req, err)
		return
	}
	http.Redirect(w, req, target, http.StatusFound)
}

func (r *Router) handleGoogleCallback(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	loginURL := r.cfg.FrontendURL + "/login"
	if errParam := req.URL.Query().Get("error"); errParam != "" {
		r.logger.Warn("provider returned error", "error", errParam)
		http.Redirect(w, req, loginURL, http.StatusFound)
		return
	}
	state := req.URL.Query().Get("state")
	code := req.URL.Query().Get("code")
	if state == "" || code == "" {
		http.Redirect(w, req, loginURL, http.StatusFound)
		return
	}
	_, token, err := r.auth.ProviderCallback(req.Context(), state, code)
	if err != nil {
		r.logger.Warn("provider callback failed", "error", err)
		http.Redirect(w, req, loginURL, http.StatusFound)
		return
	}
	http.Redirect(w, req, r.cfg.FrontendURL+"/oauth/redirect?token="+url.QueryEscape(token), http.StatusFound)
}

func (r *Router) handleUsers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	accounts, err := r.users.List(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	payload := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		payload = append(payload, userPayload(account))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (r *Router) handleUserSubroutes(w http.ResponseWriter, req *http.Request) {
	id := strings.TrimPrefix(req.URL.Path, "/api/users/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodDelete {
		r.methodNotAllowed(w)
		return
	}
	if err := r.users.Delete(req.Context(), id); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "user removed"})
}

func (r *Router) handleTasks(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for tasks route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		page, _ := strconv.Atoi(req.URL.Query().Get("page"))
		if page < 1 {
			page = 1
		}
		result, err := r.tasks.List(req.Context(), info.UserID, page)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		tasks := make([]map[string]any, 0, len(result.Tasks))
		for _, t := range result.Tasks {
			tasks = append(tasks, task.Payload(t))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"tasks": tasks,
			"page":  result.Page,
			"pages": result.Pages,
		})
	case http.MethodPost:
		var payload struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			DueDate     string `json:"dueDate"`
			Priority    string `json:"priority"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		input := task.CreateInput{
			Title:       payload.Title,
			Description: payload.Description,
			Priority:    payload.Priority,
		}
		if payload.DueDate != "" {
			due, err := parseDueDate(payload.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "please provide a valid date")
				return
			}
			input.DueDate = due
		}
		created, err := r.tasks.Create(req.Context(), info.UserID, input)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, task.Payload(*created))
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/api/tasks/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		r.notFound(w)
		return
	}
	if trimmed == "events" {
		r.handlerAuthRate("task_events", rateLimitWebsocket, rateWindowRealtime, r.handleTaskEvents)(w, req)
		return
	}
	r.handlerAuthRate("task", rateLimitUser, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
		r.handleTaskByID(w, req, trimmed)
	})(w, req)
}

func (r *Router) handleTaskByID(w http.ResponseWriter, req *http.Request, taskID string) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for task route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodGet:
		found, err := r.tasks.Get(req.Context(), taskID, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, task.Payload(*found))
	case http.MethodPut:
		var payload struct {
			Title       *string `json:"title"`
			Description *string `json:"description"`
			DueDate     *string `json:"dueDate"`
			Priority    *string `json:"priority"`
			Status      *string `json:"status"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		patch := task.UpdateInput{
			Title:       payload.Title,
			Description: payload.Description,
			Priority:    payload.Priority,
			Status:      payload.Status,
		}
		if payload.DueDate != nil && *payload.DueDate != "" {
			due, err := parseDueDate(*payload.DueDate)
			if err != nil {
				writeError(w, http.StatusBadRequest, "please provide a valid date")
				return
			}
			patch.DueDate = &due
		}
		updated, err := r.tasks.Update(req.Context(), taskID, info.UserID, patch)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, task.Payload(*updated))
	case http.MethodDelete:
		if err := r.tasks.Delete(req.Context(), taskID, info.UserID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "task removed"})
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleTaskEvents(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for task events", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	hub := r.tasks.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "board event stream disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub.Register(info.UserID, client)
	go func() {
		defer func() {
			hub.Unregister(info.UserID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// writeServiceError maps service-layer failures to HTTP statuses. Unexpected
// store errors surface as a generic 500 without internal detail.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var verr domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Reason)
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, task.ErrNotOwned):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		r.logger.Error("request failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func userPayload(u domain.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"name":      u.Name,
		"email":     u.Email,
		"isAdmin":   u.IsAdmin,
		"createdAt": u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// parseDueDate accepts a plain calendar date or a full RFC 3339 timestamp.
func parseDueDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
