package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
)

// ErrEmptyInput is returned for an empty token or subject.
var ErrEmptyInput = errors.New("empty token or subject")

type BlacklistWriter interface {
	AddToken(ctx context.Context, key string) error
	AddUser(ctx context.Context, subject string) error
	RemoveToken(ctx context.Context, key string) error
	RemoveUser(ctx context.Context, subject string) error
}

type BlacklistCache interface {
	Invalidate(ctx context.Context, keys ...string)
	InvalidateForUser(ctx context.Context, subject string) int
}

// BlacklistDeps captures revocation flow dependencies.
type BlacklistDeps struct {
	Store BlacklistWriter
	Cache BlacklistCache
	// VerifiedTokenID returns the jti of a token whose signature verifies.
	// Unverified ids are never revoked.
	VerifiedTokenID func(token string) (string, bool)
	Timeout         time.Duration
}

// RunBlacklistToken durably revokes token by digest and, when the token
// verifies, by token id. Cached validations of the token are evicted.
func RunBlacklistToken(ctx context.Context, token string, deps BlacklistDeps) error {
	if token == "" {
		return ErrEmptyInput
	}
	wctx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()

	if err := deps.Store.AddToken(wctx, store.TokenKey(token)); err != nil {
		return err
	}
	if deps.VerifiedTokenID != nil {
		if jti, ok := deps.VerifiedTokenID(token); ok && jti != "" {
			if err := deps.Store.AddToken(wctx, store.TokenIDKey(jti)); err != nil {
				return err
			}
		}
	}

	if deps.Cache != nil {
		deps.Cache.Invalidate(ctx, tokenCacheKeys(token)...)
	}
	return nil
}

// RunBlacklistUser durably revokes subject and evicts its cached validations.
// It returns the number of evicted in-process cache entries.
func RunBlacklistUser(ctx context.Context, subject string, deps BlacklistDeps) (int, error) {
	if subject == "" {
		return 0, ErrEmptyInput
	}
	wctx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()

	if err := deps.Store.AddUser(wctx, subject); err != nil {
		return 0, err
	}
	if deps.Cache == nil {
		return 0, nil
	}
	return deps.Cache.InvalidateForUser(ctx, subject), nil
}

// RunUnblacklistToken removes both revocation keys of token.
func RunUnblacklistToken(ctx context.Context, token string, deps BlacklistDeps) error {
	if token == "" {
		return ErrEmptyInput
	}
	wctx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()

	if err := deps.Store.RemoveToken(wctx, store.TokenKey(token)); err != nil {
		return err
	}
	if deps.VerifiedTokenID != nil {
		if jti, ok := deps.VerifiedTokenID(token); ok && jti != "" {
			return deps.Store.RemoveToken(wctx, store.TokenIDKey(jti))
		}
	}
	return nil
}

// RunUnblacklistUser removes subject from the user blacklist.
func RunUnblacklistUser(ctx context.Context, subject string, deps BlacklistDeps) error {
	if subject == "" {
		return ErrEmptyInput
	}
	wctx, cancel := withTimeout(ctx, deps.Timeout)
	defer cancel()
	return deps.Store.RemoveUser(wctx, subject)
}

func tokenCacheKeys(token string) []string {
	return []string{
		cache.Key(token, jwt.TypeAccess),
		cache.Key(token, jwt.TypeRefresh),
		cache.Key(token, jwt.TypeService),
	}
}
