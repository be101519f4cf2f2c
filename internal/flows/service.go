package flows

import (
	"context"

	"github.com/MrEthical07/tokenguard/jwt"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.Parse != nil
}

func (s Service) Validate(ctx context.Context, token string, expected jwt.TokenType) VerifyResult {
	return RunVerify(ctx, token, expected, false, s.deps.Verify)
}

func (s Service) ValidateForConsumption(ctx context.Context, token string, expected jwt.TokenType) VerifyResult {
	return RunVerify(ctx, token, expected, true, s.deps.Verify)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) BlacklistToken(ctx context.Context, token string) error {
	return RunBlacklistToken(ctx, token, s.deps.Blacklist)
}

func (s Service) BlacklistUser(ctx context.Context, subject string) (int, error) {
	return RunBlacklistUser(ctx, subject, s.deps.Blacklist)
}

func (s Service) UnblacklistToken(ctx context.Context, token string) error {
	return RunUnblacklistToken(ctx, token, s.deps.Blacklist)
}

func (s Service) UnblacklistUser(ctx context.Context, subject string) error {
	return RunUnblacklistUser(ctx, subject, s.deps.Blacklist)
}

func (s Service) Health(ctx context.Context) HealthResult {
	return RunHealth(ctx, s.deps.Health)
}
