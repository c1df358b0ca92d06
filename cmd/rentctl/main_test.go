package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"rentflow/fault"
	"rentflow/lifecycle"
	"rentflow/overview"
	"rentflow/sandbox"
	"rentflow/session"
)

func setupCLI(t *testing.T) {
	t.Helper()
	srv := sandbox.New(sandbox.Options{JWTSecret: "cli-secret"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	t.Setenv("RENTFLOW_API_URL", ts.URL+sandbox.APIPrefix)
	t.Setenv("RENTFLOW_SESSION_STORE", "file")
	t.Setenv("RENTFLOW_SESSION_FILE", filepath.Join(t.TempDir(), "session.json"))
	t.Setenv("RENTFLOW_PASSWORD", "correct-horse")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("MQTT_BROKER", "")
	t.Setenv("LOG_LEVEL", "error")
}

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	setupCLI(t)

	if _, err := run("register", "lena", "--email", "lena@example.com", "--role", "landlord"); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := run("whoami", "--json")
	if err != nil {
		t.Fatalf("whoami: %v", err)
	}
	var user session.User
	if err := json.Unmarshal([]byte(out), &user); err != nil {
		t.Fatalf("decode whoami output %q: %v", out, err)
	}
	if user.Username != "lena" || user.Role != lifecycle.RoleLandlord {
		t.Fatalf("unexpected user: %+v", user)
	}

	if out, err := run("logout"); err != nil || !strings.Contains(out, "logged out") {
		t.Fatalf("logout: %q %v", out, err)
	}
	if _, err := run("whoami"); !errors.Is(err, fault.ErrAuthentication) {
		t.Fatalf("expected authentication error after logout, got %v", err)
	}

	if _, err := run("login", "lena@example.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	out, err = run("dashboard", "--json")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	var sum overview.Summary
	if err := json.Unmarshal([]byte(out), &sum); err != nil {
		t.Fatalf("decode dashboard output %q: %v", out, err)
	}
	if len(sum.PendingBookings) != 0 || len(sum.ActiveLeases) != 0 {
		t.Fatalf("expected an empty dashboard, got %+v", sum)
	}
}

func TestPaymentCreateRequiresSession(t *testing.T) {
	setupCLI(t)

	_, err := run("payment", "create", "lease-1", "--amount", "5000", "--key", "k-1")
	if !errors.Is(err, fault.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if !strings.Contains(describe(err), "rentctl login") {
		t.Fatalf("expected a login hint, got %q", describe(err))
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", &fault.Error{Kind: fault.ErrTransport, Op: "payment.create", Timeout: true}, "may still have been applied"},
		{"unreachable", fault.Transport("booking.list", errors.New("connection refused")), "could not be reached"},
		{"invalid state", fault.InvalidState("booking.transition", lifecycle.BookingRejected, "cannot confirm"), "current status rejected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := describe(tc.err); !strings.Contains(got, tc.want) {
				t.Fatalf("describe(%v) = %q, want substring %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestMaintenanceCreateValidatesBeforeCalling(t *testing.T) {
	setupCLI(t)
	if _, err := run("register", "tara", "--email", "tara@example.com", "--role", "tenant"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := run("maintenance", "create", "l-1", "--title", "Leak", "--description", "drip", "--type", "roof")
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	_, err = run("repair", "create", "l-unknown", "--title", "Leak", "--description", "drip", "--type", "plumbing")
	if !errors.Is(err, fault.ErrNotFound) {
		t.Fatalf("expected unknown lease, got %v", err)
	}
}
