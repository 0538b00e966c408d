package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mysafehouse/access-api/internal/domain"
	"github.com/mysafehouse/access-api/internal/repo/postgres"
	"github.com/mysafehouse/access-api/pkg/config"
)

// Verifier issues and checks the short-lived numeric codes that prove a
// requester controls the contact channel they claimed.
type Verifier interface {
	// Issue creates a 6-digit code bound to the request and returns the
	// plaintext exactly once, for delivery on the chosen channel.
	Issue(ctx context.Context, requestID int64, phone, email string) (string, *domain.VerificationCode, error)
	// Check validates a submitted code. A mismatch increments the attempt
	// counter before returning, so retries can never gain a free attempt.
	// Exhausting max attempts is terminal: the caller denies the parent
	// request.
	Check(ctx context.Context, requestID int64, submitted string) error
}

type verifier struct {
	codes  postgres.VerificationRepo
	config *config.Config
}

func NewVerifier(codes postgres.VerificationRepo, cfg *config.Config) Verifier {
	return &verifier{codes: codes, config: cfg}
}

// newNumericCode draws a uniform 6-digit code, zero-padded; leading zeros
// are valid.
func newNumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (s *verifier) Issue(ctx context.Context, requestID int64, phone, email string) (string, *domain.VerificationCode, error) {
	plaintext, err := newNumericCode()
	if err != nil {
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash verification code: %w", err)
	}

	channel := "email"
	if phone != "" {
		channel = "sms"
	}

	code, err := s.codes.Create(ctx, &domain.VerificationCode{
		RequestID:   requestID,
		CodeHash:    string(hash),
		Channel:     channel,
		ExpiresAt:   time.Now().Add(s.config.Access.CodeTTL),
		MaxAttempts: s.config.Access.MaxVerifyAttempts,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	return plaintext, code, nil
}

func (s *verifier) Check(ctx context.Context, requestID int64, submitted string) error {
	code, err := s.codes.GetLatestUnverified(ctx, requestID)
	if err != nil {
		return fmt.Errorf("failed to load verification code: %w", err)
	}
	if code == nil {
		return domain.E(domain.KindInvalidCode, "Invalid verification code")
	}

	if time.Now().After(code.ExpiresAt) {
		return domain.E(domain.KindGone, "Verification code has expired")
	}
	if code.Attempts >= code.MaxAttempts {
		return domain.E(domain.KindTooManyAttempts, "Maximum verification attempts exceeded")
	}

	if bcrypt.CompareHashAndPassword([]byte(code.CodeHash), []byte(submitted)) != nil {
		attempts, incErr := s.codes.IncrementAttempts(ctx, code.ID)
		if incErr != nil {
			return fmt.Errorf("failed to record verification attempt: %w", incErr)
		}
		if attempts >= code.MaxAttempts {
			return domain.E(domain.KindTooManyAttempts, "Maximum verification attempts exceeded")
		}
		return domain.E(domain.KindInvalidCode, "Invalid verification code")
	}

	ok, err := s.codes.MarkVerified(ctx, code.ID)
	if err != nil {
		return fmt.Errorf("failed to mark verification code verified: %w", err)
	}
	if !ok {
		// Already consumed by a concurrent check; a replay must not succeed.
		return domain.E(domain.KindGone, "Verification code already used")
	}
	return nil
}
