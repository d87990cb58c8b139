package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"hausdesk/internal/ratelimit"
	"hausdesk/pkg/auth"
	"hausdesk/pkg/domain"
	"hausdesk/pkg/storage"
	"hausdesk/pkg/store"
)

const (
	defaultSessionTTL     = 24 * time.Hour
	defaultMaxUploadBytes = 10 << 20
	presignExpiry         = 7 * 24 * time.Hour
)

// Config holds runtime configuration for the core application. The Store,
// Sessions, Notifier, and Objects fields let tests inject in-memory
// implementations; production wiring fills them from the connection
// parameters.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	SessionSecret string
	SessionTTL    time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	SignInRateLimitPerMinute int
	SignUpRateLimitPerMinute int
	MaxUploadBytes           int64

	Store    store.Store
	Sessions store.SessionStore
	Notifier store.Notifier
	Objects  storage.ObjectStore
}

// App is the core application service wiring the auth gateway, store
// gateway, and blob storage together.
type App struct {
	gateway  *store.Gateway
	sessions store.SessionStore
	objects  storage.ObjectStore

	signInLimiter *ratelimit.FixedWindowLimiter
	signUpLimiter *ratelimit.FixedWindowLimiter

	maxUploadBytes int64
}

// New constructs the application with database storage, Redis-backed
// sessions and notifications, and MinIO blob storage.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for session revocation")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		var err error
		sessionStore, err = store.NewJWTSessionStore(cfg.SessionSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	notifier := cfg.Notifier
	if notifier == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for change notifications")
		}
		notifier = store.NewRedisNotifier(cfg.RedisAddr, cfg.RedisPassword)
	}

	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	a := &App{
		gateway:        store.NewGateway(dataStore, notifier),
		sessions:       sessionStore,
		objects:        objects,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if cfg.SignInRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "hausdesk:ratelimit:signin", cfg.SignInRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init signin limiter: %w", err)
		}
		a.signInLimiter = limiter
	}
	if cfg.SignUpRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "hausdesk:ratelimit:signup", cfg.SignUpRateLimitPerMinute, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init signup limiter: %w", err)
		}
		a.signUpLimiter = limiter
	}
	return a, nil
}

// Gateway exposes the property/task store gateway to the view and server
// layers.
func (a *App) Gateway() *store.Gateway { return a.gateway }

// SignUpRequest carries the sign-up form fields.
type SignUpRequest struct {
	Email           string
	Password        string
	PasswordConfirm string
	DisplayName     string
	CompanyName     string
}

// SignUp validates the form, then provisions the account in three phases:
// create the account, write the company profile document, set the display
// name on the account. The profile write deliberately precedes the display
// name so a partial failure still leaves a usable profile record. A failure
// after phase one leaves an account that is not fully provisioned; this
// window is not repaired automatically.
func (a *App) SignUp(ctx context.Context, req SignUpRequest, clientKey string) (domain.Session, string, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return domain.Session{}, "", &ValidationError{Field: "email", Message: "email is required"}
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return domain.Session{}, "", &ValidationError{Field: "password", Message: err.Error()}
	}
	if req.Password != req.PasswordConfirm {
		return domain.Session{}, "", &ValidationError{Field: "passwordConfirm", Message: "passwords do not match"}
	}
	if a.signUpLimiter != nil && !a.signUpLimiter.Allow(clientKey) {
		return domain.Session{}, "", authError(AuthRateLimited)
	}

	st := a.gateway.Store()
	exists, err := st.HasAccountEmail(ctx, email)
	if err != nil {
		slog.Error("signup email check failed", "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}
	if exists {
		return domain.Session{}, "", authError(AuthEmailInUse)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		slog.Error("signup hash failed", "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}

	now := time.Now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.SaveAccount(ctx, account); err != nil {
		slog.Error("signup account create failed", "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}
	if err := st.SaveProfile(ctx, domain.Profile{
		OwnerID:     account.ID,
		DisplayName: req.DisplayName,
		CompanyName: req.CompanyName,
		Email:       email,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		slog.Error("signup profile write failed", "account", account.ID, "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}
	account.DisplayName = req.DisplayName
	account.UpdatedAt = time.Now().UTC()
	if err := st.SaveAccount(ctx, account); err != nil {
		slog.Error("signup display name update failed", "account", account.ID, "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}

	return a.issueSession(account)
}

// SignIn validates credentials and issues a session token. Store failures
// surface as the mapped unknown error; the raw cause only reaches the log.
func (a *App) SignIn(ctx context.Context, email, password, clientKey string) (domain.Session, string, error) {
	if a.signInLimiter != nil && !a.signInLimiter.Allow(clientKey) {
		return domain.Session{}, "", authError(AuthRateLimited)
	}
	email = strings.TrimSpace(strings.ToLower(email))
	account, ok, err := a.gateway.Store().GetAccountByEmail(ctx, email)
	if err != nil {
		slog.Error("signin lookup failed", "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}
	if !ok || !auth.CheckPassword(password, account.PasswordHash) {
		return domain.Session{}, "", authError(AuthInvalidCredentials)
	}
	return a.issueSession(account)
}

func (a *App) issueSession(account domain.Account) (domain.Session, string, error) {
	token, err := a.sessions.NewSession(account.ID)
	if err != nil {
		slog.Error("session issue failed", "account", account.ID, "err", err)
		return domain.Session{}, "", authError(AuthUnknown)
	}
	return domain.Session{ID: account.ID, Email: account.Email, DisplayName: account.DisplayName}, token, nil
}

// SignOut revokes the session token.
func (a *App) SignOut(_ context.Context, token string) error {
	return a.sessions.DeleteSession(token)
}

// Restore resolves a token to its session, distinguishing "no session"
// (ok=false, err=nil) from a store failure.
func (a *App) Restore(ctx context.Context, token string) (domain.Session, bool, error) {
	accountID, ok, err := a.sessions.GetAccountIDByToken(token)
	if err != nil || !ok {
		return domain.Session{}, false, err
	}
	account, found, err := a.gateway.Store().GetAccountByID(ctx, accountID)
	if err != nil || !found {
		return domain.Session{}, false, err
	}
	return domain.Session{ID: account.ID, Email: account.Email, DisplayName: account.DisplayName}, true, nil
}

// Profile returns the company profile for a session.
func (a *App) Profile(ctx context.Context, session domain.Session) (domain.Profile, error) {
	profile, ok, err := a.gateway.Store().GetProfile(ctx, session.ID)
	if err != nil {
		return domain.Profile{}, err
	}
	if !ok {
		return domain.Profile{}, ErrNotFound
	}
	return profile, nil
}

// LogoUpload carries an uploaded logo image.
type LogoUpload struct {
	Filename string
	Content  []byte
}

// ProfileUpdates carries the optional profile-update fields. Nil fields are
// not touched.
type ProfileUpdates struct {
	DisplayName *string
	Email       *string
	Password    *string
	CompanyName *string
	Logo        *LogoUpload
}

// UpdateProfile applies the requested sub-updates in a fixed order: logo
// upload, profile document, account fields. The first failure aborts the
// remaining steps and is surfaced; nothing already applied is rolled back.
func (a *App) UpdateProfile(ctx context.Context, session domain.Session, upd ProfileUpdates) error {
	if session.ID == "" {
		return ErrAuthRequired
	}
	st := a.gateway.Store()

	var logoURL *string
	if upd.Logo != nil {
		url, err := a.uploadLogo(ctx, session.ID, *upd.Logo)
		if err != nil {
			return err
		}
		logoURL = &url
	}

	profileUpd := store.ProfileUpdate{
		DisplayName: upd.DisplayName,
		CompanyName: upd.CompanyName,
		Email:       upd.Email,
		LogoURL:     logoURL,
	}
	if profileUpd != (store.ProfileUpdate{}) {
		if err := st.UpdateProfile(ctx, session.ID, profileUpd); err != nil {
			return err
		}
	}

	if upd.DisplayName != nil || upd.Email != nil || upd.Password != nil {
		account, ok, err := st.GetAccountByID(ctx, session.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAuthRequired
		}
		if upd.DisplayName != nil {
			account.DisplayName = *upd.DisplayName
		}
		if upd.Email != nil {
			account.Email = strings.TrimSpace(strings.ToLower(*upd.Email))
		}
		if upd.Password != nil {
			if err := auth.ValidatePassword(*upd.Password); err != nil {
				return &ValidationError{Field: "password", Message: err.Error()}
			}
			hash, err := auth.HashPassword(*upd.Password)
			if err != nil {
				return err
			}
			account.PasswordHash = hash
		}
		account.UpdatedAt = time.Now().UTC()
		if err := st.SaveAccount(ctx, account); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) uploadLogo(ctx context.Context, ownerID string, logo LogoUpload) (string, error) {
	if int64(len(logo.Content)) > a.maxUploadBytes {
		return "", &ValidationError{Field: "logo", Message: "file too large"}
	}
	if !strings.HasPrefix(http.DetectContentType(logo.Content), "image/") {
		return "", &ValidationError{Field: "logo", Message: "file must be an image"}
	}
	key := fmt.Sprintf("logos/%s/%d-%s", ownerID, time.Now().UnixMilli(), safeFilename(logo.Filename))
	contentType := http.DetectContentType(logo.Content)
	if err := a.objects.Put(ctx, key, bytes.NewReader(logo.Content), int64(len(logo.Content)), contentType); err != nil {
		return "", fmt.Errorf("upload logo: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign logo: %w", err)
	}
	return url, nil
}

// UploadWasteSchedule validates and stores a waste-collection schedule PDF,
// then merges the resulting URL into the property document.
func (a *App) UploadWasteSchedule(ctx context.Context, propertyID, filename string, content []byte) (string, error) {
	if int64(len(content)) > a.maxUploadBytes {
		return "", &ValidationError{Field: "file", Message: "file too large"}
	}
	if _, err := pdf.NewReader(bytes.NewReader(content), int64(len(content))); err != nil {
		return "", &ValidationError{Field: "file", Message: "file must be a readable PDF"}
	}
	if _, ok, err := a.gateway.GetProperty(ctx, propertyID); err != nil {
		return "", err
	} else if !ok {
		return "", ErrNotFound
	}
	key := fmt.Sprintf("waste-schedules/%s/%d-%s", propertyID, time.Now().UnixMilli(), safeFilename(filename))
	if err := a.objects.Put(ctx, key, bytes.NewReader(content), int64(len(content)), "application/pdf"); err != nil {
		return "", fmt.Errorf("upload waste schedule: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign waste schedule: %w", err)
	}
	if err := a.gateway.UpdateProperty(ctx, propertyID, store.PropertyUpdate{WasteScheduleURL: &url}); err != nil {
		return "", err
	}
	return url, nil
}

// ToggleTask flips a task's completion. The false→true transition stamps
// LastCompleted; true→false clears it. NextDue is never touched.
func (a *App) ToggleTask(ctx context.Context, propertyID, taskID string) error {
	task, ok, err := a.gateway.GetTask(ctx, propertyID, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	completed := !task.Completed
	upd := store.TaskUpdate{Completed: &completed}
	if completed {
		now := time.Now().UTC()
		upd.LastCompleted = &now
	} else {
		upd.ClearLastCompleted = true
	}
	return a.gateway.UpdateTask(ctx, propertyID, taskID, upd)
}

// OwnsProperty reports whether the property belongs to the session.
func (a *App) OwnsProperty(ctx context.Context, session domain.Session, propertyID string) (bool, error) {
	p, ok, err := a.gateway.GetProperty(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return ok && p.OwnerID == session.ID, nil
}

func safeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
