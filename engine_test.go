package curbside

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"curbside/internal/config"
	"curbside/internal/model"
	"curbside/internal/submit"
)

type recordingFrontend struct {
	mu      sync.Mutex
	alerts  []string
	screens []submit.Screen
}

func (f *recordingFrontend) Alert(title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, title)
}

func (f *recordingFrontend) Navigate(s submit.Screen) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.screens = append(f.screens, s)
}

func mintToken(t *testing.T, secret, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestEngineMemoryStack(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.AuthSecret = "engine-test-secret"
	cfg.LogLevel = "error"

	fe := &recordingFrontend{}
	eng, err := New(cfg, fe)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	eng.Start(context.Background())
	defer eng.Stop()

	if err := eng.SignInWithToken(mintToken(t, cfg.AuthSecret, "rider-1", "rider")); err != nil {
		t.Fatalf("SignInWithToken: %v", err)
	}

	d := eng.NewDraft()
	d.SetPickup("Grand Central Terminal")
	d.SetDropoff("Citi Field, Queens")
	d.ScheduledAt = time.Now().Add(2 * time.Hour)
	eng.Coordinator.SubmitDraft(context.Background(), d)

	recs := eng.Ledger.Records()
	if len(recs) != 1 || recs[0].Status != model.StatusPending {
		t.Fatalf("ledger after submit = %+v", recs)
	}
	if recs[0].OwnerID != "rider-1" {
		t.Errorf("owner = %q", recs[0].OwnerID)
	}

	eng.SignOut()
	if len(eng.Ledger.Records()) != 0 {
		t.Fatal("sign-out should clear the ledger projection")
	}
}

func TestEngineRejectsBadToken(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.AuthSecret = "engine-test-secret"
	cfg.LogLevel = "error"

	eng, err := New(cfg, &recordingFrontend{})
	if err != nil {
		t.Fatal(err)
	}
	eng.Start(context.Background())
	defer eng.Stop()

	if err := eng.SignInWithToken(mintToken(t, "wrong-secret", "rider-1", "rider")); err == nil {
		t.Fatal("token signed with the wrong secret accepted")
	}
}
