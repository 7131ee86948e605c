package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/praxis_test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8000")
	}
	if !cfg.IsDev() {
		t.Error("expected development mode by default")
	}
	if cfg.WelcomeRetryAttempts != 3 {
		t.Errorf("WelcomeRetryAttempts = %d, want 3", cfg.WelcomeRetryAttempts)
	}
	if cfg.WelcomeRetryDelay != 2*time.Second {
		t.Errorf("WelcomeRetryDelay = %s, want 2s", cfg.WelcomeRetryDelay)
	}
	if cfg.DefaultTenant != "default" {
		t.Errorf("DefaultTenant = %q, want %q", cfg.DefaultTenant, "default")
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestValidateRegistration_MissingSecrets(t *testing.T) {
	cfg := &Config{
		PlatformBaseURL:  "https://platform.example.com",
		PlatformClientID: "client-id",
		// secret, project id and access policy id deliberately absent
	}
	err := cfg.ValidateRegistration()
	if err == nil {
		t.Fatal("expected error for missing registration secrets")
	}
	for _, want := range []string{"PLATFORM_CLIENT_SECRET", "PLATFORM_PROJECT_ID", "ACCESS_POLICY_ID"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name missing %s", err, want)
		}
	}
}

func TestValidateRegistration_Complete(t *testing.T) {
	cfg := &Config{
		PlatformBaseURL:      "https://platform.example.com",
		PlatformClientID:     "client-id",
		PlatformClientSecret: "client-secret",
		PlatformProjectID:    "proj-1",
		AccessPolicyID:       "policy-1",
	}
	if err := cfg.ValidateRegistration(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionRequiresBoundarySecrets(t *testing.T) {
	cfg := &Config{
		Env:                  "production",
		PlatformBaseURL:      "https://platform.example.com",
		PlatformClientID:     "client-id",
		PlatformClientSecret: "client-secret",
		PlatformProjectID:    "proj-1",
		AccessPolicyID:       "policy-1",
		AuthIssuer:           "https://auth.example.com",
		WelcomeRetryAttempts: 3,
	}
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "BILLING_SIGNING_SECRET") {
		t.Fatalf("expected billing secret error, got %v", err)
	}

	cfg.BillingSigningSecret = "whsec_test"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "PLATFORM_EVENT_SECRET") {
		t.Fatalf("expected event secret error, got %v", err)
	}

	cfg.PlatformEventSecret = "evt_test"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RetryBounds(t *testing.T) {
	cfg := &Config{Env: "development", WelcomeRetryAttempts: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero retry attempts")
	}
}
