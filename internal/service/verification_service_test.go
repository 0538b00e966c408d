package service_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/service"
	"github.com/mysafehouse/access-api/pkg/config"
)

func newVerifierHarness() (service.Verifier, *fakeVerificationRepo, *config.Config) {
	cfg := config.Load()
	repo := newFakeVerificationRepo()
	return service.NewVerifier(repo, cfg), repo, cfg
}

func TestIssue_SixDigitCode(t *testing.T) {
	v, repo, cfg := newVerifierHarness()

	plaintext, code, err := v.Issue(context.Background(), 1, "", "someone@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !regexp.MustCompile(`^\d{6}$`).MatchString(plaintext) {
		t.Errorf("code %q is not 6 digits", plaintext)
	}
	if code.CodeHash == plaintext {
		t.Error("code must not be stored in plaintext")
	}
	if code.Channel != "email" {
		t.Errorf("channel = %s, want email", code.Channel)
	}
	if code.MaxAttempts != cfg.Access.MaxVerifyAttempts {
		t.Errorf("max attempts = %d, want %d", code.MaxAttempts, cfg.Access.MaxVerifyAttempts)
	}

	stored, _ := repo.GetLatestUnverified(context.Background(), 1)
	if stored == nil {
		t.Fatal("code not persisted")
	}
}

func TestIssue_PhonePrefersSMS(t *testing.T) {
	v, _, _ := newVerifierHarness()

	_, code, err := v.Issue(context.Background(), 1, "+447700900123", "someone@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if code.Channel != "sms" {
		t.Errorf("channel = %s, want sms when phone present", code.Channel)
	}
}

func TestCheck_Success_ConsumesCode(t *testing.T) {
	v, _, _ := newVerifierHarness()
	plaintext, _, _ := v.Issue(context.Background(), 1, "", "a@b.com")

	if err := v.Check(context.Background(), 1, plaintext); err != nil {
		t.Fatalf("Check: %v", err)
	}

	// Consumed: the same code cannot verify twice.
	err := v.Check(context.Background(), 1, plaintext)
	if domain.KindOf(err) != domain.KindInvalidCode {
		t.Fatalf("expected invalid code after consumption, got %v", err)
	}
}

func TestCheck_NoCode_InvalidCode(t *testing.T) {
	v, _, _ := newVerifierHarness()

	err := v.Check(context.Background(), 7, "123456")
	if domain.KindOf(err) != domain.KindInvalidCode {
		t.Fatalf("expected invalid code, got %v", err)
	}
}

func TestCheck_ExpiredCode_Gone(t *testing.T) {
	v, repo, _ := newVerifierHarness()
	plaintext, code, _ := v.Issue(context.Background(), 1, "", "a@b.com")

	repo.mu.Lock()
	repo.codes[code.ID].ExpiresAt = time.Now().Add(-time.Second)
	repo.mu.Unlock()

	err := v.Check(context.Background(), 1, plaintext)
	if domain.KindOf(err) != domain.KindGone {
		t.Fatalf("expected gone, got %v", err)
	}
}

func TestCheck_AttemptBudgetEnforced(t *testing.T) {
	v, repo, cfg := newVerifierHarness()
	plaintext, code, _ := v.Issue(context.Background(), 1, "", "a@b.com")

	wrong := "000000"
	if wrong == plaintext {
		wrong = "000001"
	}

	for i := 1; i < cfg.Access.MaxVerifyAttempts; i++ {
		if err := v.Check(context.Background(), 1, wrong); domain.KindOf(err) != domain.KindInvalidCode {
			t.Fatalf("attempt %d: expected invalid code, got %v", i, err)
		}
	}
	if err := v.Check(context.Background(), 1, wrong); domain.KindOf(err) != domain.KindTooManyAttempts {
		t.Fatalf("expected too many attempts, got %v", err)
	}

	repo.mu.Lock()
	attempts := repo.codes[code.ID].Attempts
	repo.mu.Unlock()
	if attempts != cfg.Access.MaxVerifyAttempts {
		t.Errorf("attempts = %d, want %d", attempts, cfg.Access.MaxVerifyAttempts)
	}

	// Even the right code is refused once the budget is spent.
	if err := v.Check(context.Background(), 1, plaintext); domain.KindOf(err) != domain.KindTooManyAttempts {
		t.Fatalf("expected too many attempts with correct code, got %v", err)
	}
}
