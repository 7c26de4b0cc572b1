// AngelaMos | 2026
// sender.go

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/core"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

// Sender generates, delivers, and verifies one-time codes. Delivery mode
// comes from config: "log" writes the code to the application log for
// local development, "webhook" posts it to the transactional email relay.
type Sender struct {
	challenges *challengeStore
	deliver    deliverFunc
	codeLength int
}

type deliverFunc func(ctx context.Context, email, code string) error

var _ onboarding.IdentitySender = (*Sender)(nil)

func NewSender(
	client *redis.Client,
	onbCfg config.OnboardingConfig,
	idCfg config.IdentityConfig,
) *Sender {
	sender := &Sender{
		challenges: newChallengeStore(client, onbCfg.OTPTTL),
		codeLength: onbCfg.OTPLength,
	}

	switch idCfg.SenderMode {
	case "webhook":
		sender.deliver = newWebhookDeliverer(idCfg)
	default:
		sender.deliver = logDeliverer
	}

	return sender
}

func (s *Sender) SendOTP(ctx context.Context, email string) (string, error) {
	code, err := core.GenerateOTPCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	challengeID, err := s.challenges.Create(ctx, email, code)
	if err != nil {
		return "", err
	}

	if err := s.deliver(ctx, email, code); err != nil {
		return "", fmt.Errorf("deliver otp: %w", err)
	}

	return challengeID, nil
}

func (s *Sender) VerifyOTP(ctx context.Context, challengeID, code string) error {
	return s.challenges.Verify(ctx, challengeID, code)
}

func logDeliverer(ctx context.Context, email, code string) error {
	slog.InfoContext(ctx, "otp issued (log sender)",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

func newWebhookDeliverer(cfg config.IdentityConfig) deliverFunc {
	client := &http.Client{Timeout: cfg.Timeout}

	return func(ctx context.Context, email, code string) error {
		payload, err := json.Marshal(map[string]string{
			"to":       email,
			"template": "onboarding_otp",
			"code":     code,
		})
		if err != nil {
			return fmt.Errorf("encode otp payload: %w", err)
		}

		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			cfg.WebhookURL,
			bytes.NewReader(payload),
		)
		if err != nil {
			return fmt.Errorf("build otp request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("post otp webhook: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("otp webhook returned %d", resp.StatusCode)
		}

		return nil
	}
}
