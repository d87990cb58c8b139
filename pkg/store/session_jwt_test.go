package store

import (
	"testing"
	"time"
)

func newTestSessionStore(t *testing.T, ttl time.Duration) *JWTSessionStore {
	t.Helper()
	s, err := NewJWTSessionStore("test-secret", ttl, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestSessionStore(t, time.Hour)

	token, err := s.NewSession("acct-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	accountID, ok, err := s.GetAccountIDByToken(token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || accountID != "acct-1" {
		t.Fatalf("unexpected lookup: ok=%v id=%q", ok, accountID)
	}
}

func TestSessionRejectsGarbageToken(t *testing.T) {
	s := newTestSessionStore(t, time.Hour)
	if _, ok, err := s.GetAccountIDByToken("not-a-jwt"); ok || err != nil {
		t.Fatalf("garbage token accepted: ok=%v err=%v", ok, err)
	}
}

func TestSessionRejectsWrongSecret(t *testing.T) {
	s := newTestSessionStore(t, time.Hour)
	token, err := s.NewSession("acct-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	other, err := NewJWTSessionStore("different-secret", time.Hour, NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	if _, ok, _ := other.GetAccountIDByToken(token); ok {
		t.Fatalf("token signed with another secret accepted")
	}
}

func TestDeleteSessionRevokesToken(t *testing.T) {
	s := newTestSessionStore(t, time.Hour)
	token, err := s.NewSession("acct-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := s.DeleteSession(token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.GetAccountIDByToken(token); ok {
		t.Fatalf("revoked token still valid")
	}
}

func TestSessionRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("", time.Hour, NewMemoryTokenRevoker()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
