package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"hausdesk/pkg/domain"
	"hausdesk/pkg/storage"
	"hausdesk/pkg/store"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *storage.MemoryObjectStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	objects := storage.NewMemoryObjectStore()
	sessions, err := store.NewJWTSessionStore("test-secret", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := New(Config{
		Store:    ms,
		Sessions: sessions,
		Notifier: store.NewMemoryNotifier(),
		Objects:  objects,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, ms, objects
}

func signUpRequest() SignUpRequest {
	return SignUpRequest{
		Email:           "maria@sonnenhof.example",
		Password:        "geheim1",
		PasswordConfirm: "geheim1",
		DisplayName:     "Maria Huber",
		CompanyName:     "Hausverwaltung Huber GmbH",
	}
}

func TestSignUpProvisionsAccountAndProfile(t *testing.T) {
	a, ms, _ := newTestApp(t)
	ctx := context.Background()

	session, token, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if token == "" || session.ID == "" {
		t.Fatalf("missing session or token: %+v %q", session, token)
	}
	if session.DisplayName != "Maria Huber" {
		t.Fatalf("display name not set on session: %q", session.DisplayName)
	}

	profile, ok, err := ms.GetProfile(ctx, session.ID)
	if err != nil || !ok {
		t.Fatalf("profile missing: ok=%v err=%v", ok, err)
	}
	if profile.CompanyName != "Hausverwaltung Huber GmbH" {
		t.Fatalf("company name not persisted: %q", profile.CompanyName)
	}

	restored, ok, err := a.Restore(ctx, token)
	if err != nil || !ok {
		t.Fatalf("restore: ok=%v err=%v", ok, err)
	}
	if restored.ID != session.ID {
		t.Fatalf("restore returned different account: %q vs %q", restored.ID, session.ID)
	}
}

func TestSignUpValidatesBeforeAnyWrite(t *testing.T) {
	a, ms, _ := newTestApp(t)
	ctx := context.Background()

	req := signUpRequest()
	req.PasswordConfirm = "something-else"
	_, _, err := a.SignUp(ctx, req, "client-1")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Nothing was provisioned.
	if exists, _ := ms.HasAccountEmail(ctx, "maria@sonnenhof.example"); exists {
		t.Fatalf("account created despite failed validation")
	}

	req = signUpRequest()
	req.Password = "kurz"
	req.PasswordConfirm = "kurz"
	if _, _, err := a.SignUp(ctx, req, "client-1"); !IsValidation(err) {
		t.Fatalf("expected validation error for short password, got %v", err)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, _, err := a.SignUp(ctx, signUpRequest(), "client-1"); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	_, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != AuthEmailInUse {
		t.Fatalf("expected email-in-use, got %v", err)
	}
}

func TestSignInMapsBadCredentials(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, _, err := a.SignUp(ctx, signUpRequest(), "client-1"); err != nil {
		t.Fatalf("signup: %v", err)
	}

	_, _, err := a.SignIn(ctx, "maria@sonnenhof.example", "falsch1", "client-1")
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != AuthInvalidCredentials {
		t.Fatalf("expected invalid-credentials, got %v", err)
	}
	if !strings.Contains(ae.Message, "Passwort") {
		t.Fatalf("expected user-facing message, got %q", ae.Message)
	}

	// Unknown account maps identically, no enumeration.
	_, _, err = a.SignIn(ctx, "nobody@example.com", "geheim1", "client-1")
	if !errors.As(err, &ae) || ae.Kind != AuthInvalidCredentials {
		t.Fatalf("expected invalid-credentials for unknown email, got %v", err)
	}
}

func TestSignInIsCaseInsensitiveOnEmail(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if _, _, err := a.SignUp(ctx, signUpRequest(), "client-1"); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, _, err := a.SignIn(ctx, "Maria@Sonnenhof.example", "geheim1", "client-1"); err != nil {
		t.Fatalf("signin with mixed-case email: %v", err)
	}
}

func TestSignOutRevokesSession(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	_, token, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := a.SignOut(ctx, token); err != nil {
		t.Fatalf("signout: %v", err)
	}
	if _, ok, _ := a.Restore(ctx, token); ok {
		t.Fatalf("session survived signout")
	}
}

func TestToggleTaskStampsAndClearsLastCompleted(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	propID, err := a.Gateway().CreateProperty(ctx, session.ID, "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}
	due := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	taskID, err := a.Gateway().AddTask(ctx, propID, store.NewTask{Title: "Heizung warten", Interval: domain.IntervalYearly, NextDue: due})
	if err != nil {
		t.Fatalf("add task: %v", err)
	}

	if err := a.ToggleTask(ctx, propID, taskID); err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	task, _, err := a.Gateway().GetTask(ctx, propID, taskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !task.Completed || task.LastCompleted == nil {
		t.Fatalf("toggle did not complete task: %+v", task)
	}
	if !task.NextDue.Equal(due) {
		t.Fatalf("toggle must not reschedule: %v", task.NextDue)
	}

	if err := a.ToggleTask(ctx, propID, taskID); err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	task, _, err = a.Gateway().GetTask(ctx, propID, taskID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.Completed || task.LastCompleted != nil {
		t.Fatalf("toggle back did not clear completion: %+v", task)
	}
	if !task.NextDue.Equal(due) {
		t.Fatalf("toggle must not reschedule: %v", task.NextDue)
	}
}

func TestToggleTaskUnknownTask(t *testing.T) {
	a, _, _ := newTestApp(t)
	if err := a.ToggleTask(context.Background(), "no-such-property", "no-such-task"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// pngHeader is enough for content-type sniffing to see image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func TestUpdateProfileUploadsLogo(t *testing.T) {
	a, ms, _ := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	err = a.UpdateProfile(ctx, session, ProfileUpdates{
		Logo: &LogoUpload{Filename: "logo.png", Content: pngHeader},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	profile, _, err := ms.GetProfile(ctx, session.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.LogoURL == "" {
		t.Fatalf("logo URL not stored on profile")
	}
}

func TestUpdateProfileAbortsWhenLogoUploadFails(t *testing.T) {
	a, ms, objects := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	objects.FailPuts = errors.New("bucket unavailable")
	name := "Neuer Name"
	err = a.UpdateProfile(ctx, session, ProfileUpdates{
		DisplayName: &name,
		Logo:        &LogoUpload{Filename: "logo.png", Content: pngHeader},
	})
	if err == nil {
		t.Fatalf("expected upload failure to abort the update")
	}

	// Fail fast: the display name update never ran.
	profile, _, err := ms.GetProfile(ctx, session.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.DisplayName != "Maria Huber" {
		t.Fatalf("profile updated despite failed upload: %q", profile.DisplayName)
	}
}

func TestUpdateProfileRejectsNonImageLogo(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	err = a.UpdateProfile(ctx, session, ProfileUpdates{
		Logo: &LogoUpload{Filename: "logo.txt", Content: []byte("not an image")},
	})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUploadWasteScheduleRejectsNonPDF(t *testing.T) {
	a, _, objects := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	propID, err := a.Gateway().CreateProperty(ctx, session.ID, "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}

	objects.FailPuts = errors.New("put should never run for a rejected file")
	_, err = a.UploadWasteSchedule(ctx, propID, "plan.pdf", []byte("plain text, not a PDF"))
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOwnsProperty(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	session, _, err := a.SignUp(ctx, signUpRequest(), "client-1")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	other := domain.Session{ID: "someone-else"}

	propID, err := a.Gateway().CreateProperty(ctx, session.ID, "Sonnenhof", "Bergstraße 12")
	if err != nil {
		t.Fatalf("create property: %v", err)
	}

	if owns, err := a.OwnsProperty(ctx, session, propID); err != nil || !owns {
		t.Fatalf("owner not recognized: owns=%v err=%v", owns, err)
	}
	if owns, err := a.OwnsProperty(ctx, other, propID); err != nil || owns {
		t.Fatalf("foreign session recognized as owner: owns=%v err=%v", owns, err)
	}
	if owns, err := a.OwnsProperty(ctx, session, "no-such-property"); err != nil || owns {
		t.Fatalf("unknown property: owns=%v err=%v", owns, err)
	}
}
