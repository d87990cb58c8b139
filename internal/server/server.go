package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hausdesk/internal/app"
	"hausdesk/internal/util"
	"hausdesk/internal/view"
	"hausdesk/pkg/domain"
	"hausdesk/pkg/store"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
}

// Server exposes the HTTP endpoints: auth, property/task CRUD, uploads, and
// SSE watch streams.
type Server struct {
	app *app.App
	mux *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestLog(h)
	h = util.WithCORS(h)
	h = util.WithSecurityHeaders(h)
	h = util.WithRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// auth
	s.mux.HandleFunc("/auth/signup", s.handleSignup)
	s.mux.HandleFunc("/auth/login", s.handleLogin)
	s.mux.HandleFunc("/auth/logout", s.handleLogout)
	s.mux.Handle("/auth/me", s.authenticated(s.handleMe))

	// properties and tasks
	s.mux.Handle("/properties", s.authenticated(s.handleProperties))
	s.mux.Handle("/properties/", s.authenticated(s.handlePropertyByID))
	s.mux.Handle("/watch/properties", s.authenticated(s.handleWatchProperties))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Session)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		session, ok, err := s.app.Restore(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, session)
	})
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req signupRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, token, err := s.app.SignUp(r.Context(), app.SignUpRequest{
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		DisplayName:     req.DisplayName,
		CompanyName:     req.CompanyName,
	}, util.ClientIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, Session: session})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	session, token, err := s.app.SignIn(r.Context(), req.Email, req.Password, util.ClientIP(r))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, Session: session})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.SignOut(r.Context(), token); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, session domain.Session) {
	switch r.Method {
	case http.MethodGet:
		profile, err := s.app.Profile(r.Context(), session)
		if err != nil && !errors.Is(err, app.ErrNotFound) {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, meResponse{Session: session, Profile: profile})
	case http.MethodPatch:
		s.handleUpdateMe(w, r, session)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, session domain.Session) {
	updates, err := parseProfileUpdates(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.app.UpdateProfile(r.Context(), session, updates); err != nil {
		writeAppError(w, err)
		return
	}
	refreshed, _, err := s.app.Restore(r.Context(), mustBearer(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	profile, err := s.app.Profile(r.Context(), refreshed)
	if err != nil && !errors.Is(err, app.ErrNotFound) {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Session: refreshed, Profile: profile})
}

// parseProfileUpdates accepts multipart form data (for logo uploads) or a
// plain JSON body.
func parseProfileUpdates(r *http.Request) (app.ProfileUpdates, error) {
	updates := app.ProfileUpdates{}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return updates, &app.ValidationError{Field: "body", Message: "invalid multipart form"}
		}
		if v, ok := formValue(r, "displayName"); ok {
			updates.DisplayName = &v
		}
		if v, ok := formValue(r, "companyName"); ok {
			updates.CompanyName = &v
		}
		if v, ok := formValue(r, "email"); ok {
			updates.Email = &v
		}
		if v, ok := formValue(r, "password"); ok {
			updates.Password = &v
		}
		file, header, err := r.FormFile("logo")
		if err == nil {
			defer file.Close()
			content, readErr := io.ReadAll(file)
			if readErr != nil {
				return updates, &app.ValidationError{Field: "logo", Message: "could not read file"}
			}
			updates.Logo = &app.LogoUpload{Filename: header.Filename, Content: content}
		}
		return updates, nil
	}
	var req updateMeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return updates, &app.ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	updates.DisplayName = req.DisplayName
	updates.CompanyName = req.CompanyName
	updates.Email = req.Email
	updates.Password = req.Password
	return updates, nil
}

func formValue(r *http.Request, key string) (string, bool) {
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// property handlers
func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request, session domain.Session) {
	switch r.Method {
	case http.MethodGet:
		props, err := s.app.Gateway().ListProperties(r.Context(), session.ID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": props, "count": len(props)})
	case http.MethodPost:
		var req createPropertyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Address) == "" {
			writeError(w, http.StatusBadRequest, "name and address are required")
			return
		}
		id, err := s.app.Gateway().CreateProperty(r.Context(), session.ID, req.Name, req.Address)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	default:
		methodNotAllowed(w)
	}
}

// handlePropertyByID dispatches /properties/{id}[/...] sub-routes.
func (s *Server) handlePropertyByID(w http.ResponseWriter, r *http.Request, session domain.Session) {
	rest := strings.TrimPrefix(r.URL.Path, "/properties/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	propertyID := parts[0]

	owns, err := s.app.OwnsProperty(r.Context(), session, propertyID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if !owns {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1:
		s.handleProperty(w, r, propertyID)
	case len(parts) == 2 && parts[1] == "waste-schedule":
		s.handleWasteSchedule(w, r, propertyID)
	case len(parts) == 2 && parts[1] == "tasks":
		s.handleTasks(w, r, propertyID)
	case len(parts) == 3 && parts[1] == "tasks" && parts[2] == "watch":
		s.handleWatchTasks(w, r, propertyID)
	case len(parts) == 3 && parts[1] == "tasks":
		s.handleTaskByID(w, r, propertyID, parts[2])
	case len(parts) == 4 && parts[1] == "tasks" && parts[3] == "toggle":
		s.handleTaskToggle(w, r, propertyID, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleProperty(w http.ResponseWriter, r *http.Request, propertyID string) {
	switch r.Method {
	case http.MethodPatch:
		var req updatePropertyRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		upd := store.PropertyUpdate{
			Name:             req.Name,
			Address:          req.Address,
			WasteScheduleURL: req.WasteScheduleURL,
		}
		if err := s.app.Gateway().UpdateProperty(r.Context(), propertyID, upd); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.app.Gateway().DeleteProperty(r.Context(), propertyID); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWasteSchedule(w http.ResponseWriter, r *http.Request, propertyID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return
	}
	url, err := s.app.UploadWasteSchedule(r.Context(), propertyID, header.Filename, content)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"wasteScheduleUrl": url})
}

// task handlers
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request, propertyID string) {
	switch r.Method {
	case http.MethodGet:
		tasks, err := s.app.Gateway().ListTasks(r.Context(), propertyID)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": tasks, "count": len(tasks)})
	case http.MethodPost:
		var req createTaskRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Title) == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		interval, err := domain.ParseInterval(req.Interval)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid interval")
			return
		}
		if req.NextDue.IsZero() {
			writeError(w, http.StatusBadRequest, "nextDue is required")
			return
		}
		id, err := s.app.Gateway().AddTask(r.Context(), propertyID, store.NewTask{
			Title:    req.Title,
			Interval: interval,
			NextDue:  req.NextDue,
		})
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request, propertyID, taskID string) {
	switch r.Method {
	case http.MethodPatch:
		var req updateTaskRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		upd := store.TaskUpdate{
			Title:              req.Title,
			NextDue:            req.NextDue,
			Completed:          req.Completed,
			LastCompleted:      req.LastCompleted,
			ClearLastCompleted: req.ClearLastCompleted,
		}
		if req.Interval != nil {
			interval, err := domain.ParseInterval(*req.Interval)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid interval")
				return
			}
			upd.Interval = &interval
		}
		if err := s.app.Gateway().UpdateTask(r.Context(), propertyID, taskID, upd); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if err := s.app.Gateway().DeleteTask(r.Context(), propertyID, taskID); err != nil {
			writeAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleTaskToggle(w http.ResponseWriter, r *http.Request, propertyID, taskID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.app.ToggleTask(r.Context(), propertyID, taskID); err != nil {
		writeAppError(w, err)
		return
	}
	task, ok, err := s.app.Gateway().GetTask(r.Context(), propertyID, taskID)
	if err != nil || !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// watch handlers (SSE)

// handleWatchProperties serves the session's property list through a
// per-connection mirror. The optional ?selected=<propertyID> parameter picks
// the property whose live task snapshot is spliced into each delivery.
func (s *Server) handleWatchProperties(w http.ResponseWriter, r *http.Request, session domain.Session) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	mirror := view.NewMirror(r.Context(), s.app.Gateway(), session)
	defer mirror.Close()
	if selected := r.URL.Query().Get("selected"); selected != "" {
		owns, err := s.app.OwnsProperty(r.Context(), session, selected)
		if err != nil {
			writeAppError(w, err)
			return
		}
		if !owns {
			http.NotFound(w, r)
			return
		}
		mirror.Select(selected)
	}
	streamSSE(w, r, func() (any, bool) {
		for {
			select {
			case <-r.Context().Done():
				return nil, false
			case <-mirror.Changes():
				if !mirror.Ready() {
					continue
				}
				return mirror.Properties(), true
			}
		}
	})
}

func (s *Server) handleWatchTasks(w http.ResponseWriter, r *http.Request, propertyID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	snapshots, cancel := s.app.Gateway().WatchTasks(r.Context(), propertyID)
	defer cancel()
	streamSSE(w, r, func() (any, bool) {
		snapshot, ok := <-snapshots
		return snapshot, ok
	})
}

// streamSSE writes each snapshot as one SSE data event until the stream or
// the request ends.
func streamSSE(w http.ResponseWriter, r *http.Request, next func() (any, bool)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		snapshot, ok := next()
		if !ok {
			return
		}
		payload, err := json.Marshal(snapshot)
		if err != nil {
			slog.Warn("sse marshal failed", "err", err)
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return
		}
		if _, err := w.Write(payload); err != nil {
			return
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return
		}
		flusher.Flush()
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

// request/response types
type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
	DisplayName     string `json:"displayName"`
	CompanyName     string `json:"companyName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string         `json:"token"`
	Session domain.Session `json:"session"`
}

type meResponse struct {
	Session domain.Session `json:"session"`
	Profile domain.Profile `json:"profile"`
}

type updateMeRequest struct {
	DisplayName *string `json:"displayName"`
	CompanyName *string `json:"companyName"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
}

type createPropertyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type updatePropertyRequest struct {
	Name             *string `json:"name"`
	Address          *string `json:"address"`
	WasteScheduleURL *string `json:"wasteScheduleUrl"`
}

type createTaskRequest struct {
	Title    string    `json:"title"`
	Interval string    `json:"interval"`
	NextDue  time.Time `json:"nextDue"`
}

type updateTaskRequest struct {
	Title              *string    `json:"title"`
	Interval           *string    `json:"interval"`
	NextDue            *time.Time `json:"nextDue"`
	Completed          *bool      `json:"completed"`
	LastCompleted      *time.Time `json:"lastCompleted"`
	ClearLastCompleted bool       `json:"clearLastCompleted"`
}

// helpers
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func mustBearer(r *http.Request) string {
	token, _ := bearerToken(r)
	return token
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeAppError maps application errors onto HTTP statuses without leaking
// internals.
func writeAppError(w http.ResponseWriter, err error) {
	var ve *app.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Message)
		return
	}
	var ae *app.AuthError
	if errors.As(err, &ae) {
		switch ae.Kind {
		case app.AuthInvalidCredentials:
			writeError(w, http.StatusUnauthorized, ae.Message)
		case app.AuthRateLimited:
			writeError(w, http.StatusTooManyRequests, ae.Message)
		case app.AuthEmailInUse:
			writeError(w, http.StatusConflict, ae.Message)
		default:
			writeError(w, http.StatusInternalServerError, ae.Message)
		}
		return
	}
	switch {
	case errors.Is(err, app.ErrAuthRequired), errors.Is(err, store.ErrOwnerRequired):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, app.ErrNotFound), store.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidInterval):
		writeError(w, http.StatusBadRequest, "invalid interval")
	case store.KindOf(err) == store.KindPermission:
		writeError(w, http.StatusForbidden, "forbidden")
	case store.KindOf(err) == store.KindQuota:
		writeError(w, http.StatusTooManyRequests, "quota exceeded")
	case store.KindOf(err) == store.KindNetwork:
		writeError(w, http.StatusBadGateway, "backend unavailable")
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
