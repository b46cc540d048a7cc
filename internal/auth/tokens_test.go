package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateAndVerify(t *testing.T) {
	s := NewTokenStore(t.TempDir())

	rec, wire, err := s.Create("ci", []string{"queue:*", "session:read"}, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(wire, rec.ID+".") {
		t.Fatalf("wire token %q does not start with id", wire)
	}

	got, err := s.Verify(wire)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != rec.ID || len(got.Permissions) != 2 {
		t.Fatalf("verified record = %+v", got)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	_, wire, err := s.Create("t", []string{"session:read"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, bad := range []string{
		"",
		"no-dot",
		"unknown-id.deadbeef",
		wire + "0",
		wire[:len(wire)-1],
	} {
		if _, err := s.Verify(bad); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("verify(%q) err = %v, want ErrTokenInvalid", bad, err)
		}
	}
}

func TestVerifyAfterRevoke(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	rec, wire, err := s.Create("t", []string{"queue:*"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Revoke(rec.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.Verify(wire); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verify after revoke err = %v", err)
	}
	if err := s.Revoke(rec.ID); !errors.Is(err, ErrAlreadyRevoked) {
		t.Fatalf("double revoke err = %v", err)
	}
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	rec, oldWire, err := s.Create("t", []string{"group:*"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Revoke(rec.ID); err != nil {
		t.Fatal(err)
	}

	_, newWire, err := s.Rotate(rec.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	// Rotation clears revocation for the new secret only.
	if _, err := s.Verify(newWire); err != nil {
		t.Fatalf("verify new wire: %v", err)
	}
	if _, err := s.Verify(oldWire); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verify old wire err = %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	past := time.Now().Add(-time.Hour)
	_, wire, err := s.Create("t", []string{"session:read"}, &past)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Verify(wire); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("verify expired err = %v", err)
	}
}

func TestCreateRejectsUnknownPermission(t *testing.T) {
	s := NewTokenStore(t.TempDir())
	if _, _, err := s.Create("t", []string{"admin:*"}, nil); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestHasPermission(t *testing.T) {
	rec := &Record{Permissions: []string{"queue:*", "session:read"}}
	cases := []struct {
		scope string
		want  bool
	}{
		{"queue:run", true},
		{"queue:delete", true},
		{"session:read", true},
		{"session:create", false},
		{"group:run", false},
	}
	for _, tc := range cases {
		if got := HasPermission(rec, tc.scope); got != tc.want {
			t.Errorf("HasPermission(%q) = %v, want %v", tc.scope, got, tc.want)
		}
	}
}
