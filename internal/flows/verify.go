package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/cache"
	"github.com/MrEthical07/tokenguard/jwt"
	"github.com/MrEthical07/tokenguard/store"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureMalformed
	VerifyFailureCachedInvalid
	VerifyFailureTokenBlacklisted
	VerifyFailureDecode
	VerifyFailureType
	VerifyFailureUserBlacklisted
	VerifyFailureClaims
	VerifyFailureTrust
	VerifyFailureReplay
	VerifyFailureBackend
)

var verifyFailureNames = [...]string{
	VerifyFailureNone:             "none",
	VerifyFailureMalformed:        "malformed",
	VerifyFailureCachedInvalid:    "cached_invalid",
	VerifyFailureTokenBlacklisted: "token_blacklisted",
	VerifyFailureDecode:           "decode",
	VerifyFailureType:             "type",
	VerifyFailureUserBlacklisted:  "user_blacklisted",
	VerifyFailureClaims:           "claims",
	VerifyFailureTrust:            "trust",
	VerifyFailureReplay:           "replay",
	VerifyFailureBackend:          "backend",
}

func (k VerifyFailureKind) String() string {
	if int(k) < len(verifyFailureNames) {
		return verifyFailureNames[k]
	}
	return "unknown"
}

// VerifyResult carries either validated claims or failure metadata.
type VerifyResult struct {
	Failure   VerifyFailureKind
	Err       error
	Claims    *jwt.Claims
	Signature string
	CacheHit  bool
}

type VerifyCache interface {
	Get(ctx context.Context, key string) (cache.Entry, bool)
	PutClaims(key string, claims *jwt.Claims, signature string)
	PutInvalid(key string)
}

type VerifyBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, key string) (bool, error)
	IsUserBlacklisted(ctx context.Context, subject string) (bool, error)
}

type VerifyReplay interface {
	Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
}

// VerifyDeps captures the verification pipeline dependencies.
type VerifyDeps struct {
	Cache         VerifyCache
	Blacklist     VerifyBlacklist
	Replay        VerifyReplay
	Parse         func(string) (*jwt.Claims, error)
	CheckBaseline func(*jwt.Claims, time.Time) error
	CheckTrust    func(*jwt.Claims, time.Time) error
	Sign          func(*jwt.Claims) (string, error)
	Now           func() time.Time
	StoreTimeout  time.Duration
	ReplayTimeout time.Duration
}

// RunVerify is the single verification pipeline behind Validate and
// ValidateForConsumption. With replayProtected set the cache is bypassed and
// the token id is consumed once all other checks pass.
func RunVerify(ctx context.Context, token string, expected jwt.TokenType, replayProtected bool, deps VerifyDeps) VerifyResult {
	now := deps.Now()
	key := cache.Key(token, expected)
	useCache := !replayProtected && deps.Cache != nil

	if useCache {
		if entry, ok := deps.Cache.Get(ctx, key); ok {
			if entry.Invalid || entry.Claims == nil {
				return VerifyResult{Failure: VerifyFailureCachedInvalid, CacheHit: true}
			}
			// Revocations are not always propagated to every cache tier.
			if res := checkTokenRevoked(ctx, token, deps); res.Failure != VerifyFailureNone {
				res.CacheHit = true
				return res
			}
			if res := checkUserRevoked(ctx, entry.Claims, deps); res.Failure != VerifyFailureNone {
				res.CacheHit = true
				return res
			}
			// Age and skew depend on now, not on when the entry was stored.
			if err := deps.CheckTrust(entry.Claims, now); err != nil {
				return VerifyResult{Failure: VerifyFailureTrust, Err: err, CacheHit: true}
			}
			return VerifyResult{Claims: entry.Claims, Signature: entry.Signature, CacheHit: true}
		}
	}

	if !jwt.HasThreeSegments(token) {
		if useCache {
			deps.Cache.PutInvalid(key)
		}
		return VerifyResult{Failure: VerifyFailureMalformed, Err: jwt.ErrMalformed}
	}

	if res := checkTokenRevoked(ctx, token, deps); res.Failure != VerifyFailureNone {
		return res
	}

	claims, err := safeParse(deps.Parse, token)
	if err != nil {
		if useCache {
			deps.Cache.PutInvalid(key)
		}
		return VerifyResult{Failure: VerifyFailureDecode, Err: err}
	}

	if claims.TokenType != expected {
		if useCache {
			deps.Cache.PutInvalid(key)
		}
		return VerifyResult{
			Failure: VerifyFailureType,
			Err:     fmt.Errorf("token type %q, expected %q", claims.TokenType, expected),
		}
	}

	if res := checkUserRevoked(ctx, claims, deps); res.Failure != VerifyFailureNone {
		return res
	}

	if err := deps.CheckBaseline(claims, now); err != nil {
		return VerifyResult{Failure: VerifyFailureClaims, Err: err}
	}
	if err := deps.CheckTrust(claims, now); err != nil {
		return VerifyResult{Failure: VerifyFailureTrust, Err: err}
	}

	if replayProtected {
		if deps.Replay == nil {
			return VerifyResult{Failure: VerifyFailureBackend, Err: store.ErrUnavailable}
		}
		rctx, cancel := withTimeout(ctx, deps.ReplayTimeout)
		first, err := deps.Replay.Consume(rctx, claims.ID, claims.ExpiresAtTime())
		cancel()
		if err != nil {
			return VerifyResult{Failure: VerifyFailureBackend, Err: err}
		}
		if !first {
			return VerifyResult{Failure: VerifyFailureReplay}
		}
	}

	sig, err := deps.Sign(claims)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureBackend, Err: err}
	}
	if useCache {
		deps.Cache.PutClaims(key, claims, sig)
	}
	return VerifyResult{Claims: claims, Signature: sig}
}

func checkTokenRevoked(ctx context.Context, token string, deps VerifyDeps) VerifyResult {
	if deps.Blacklist == nil {
		return VerifyResult{Failure: VerifyFailureBackend, Err: store.ErrUnavailable}
	}
	bctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()
	revoked, err := deps.Blacklist.IsTokenBlacklisted(bctx, store.TokenKey(token))
	if err != nil {
		return VerifyResult{Failure: VerifyFailureBackend, Err: err}
	}
	if revoked {
		return VerifyResult{Failure: VerifyFailureTokenBlacklisted}
	}
	return VerifyResult{}
}

// checkUserRevoked covers the subject blacklist and the token-id blacklist.
func checkUserRevoked(ctx context.Context, claims *jwt.Claims, deps VerifyDeps) VerifyResult {
	if deps.Blacklist == nil {
		return VerifyResult{Failure: VerifyFailureBackend, Err: store.ErrUnavailable}
	}
	bctx, cancel := withTimeout(ctx, deps.StoreTimeout)
	defer cancel()

	revoked, err := deps.Blacklist.IsUserBlacklisted(bctx, claims.Subject)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureBackend, Err: err}
	}
	if revoked {
		return VerifyResult{Failure: VerifyFailureUserBlacklisted}
	}

	if claims.ID != "" {
		revoked, err = deps.Blacklist.IsTokenBlacklisted(bctx, store.TokenIDKey(claims.ID))
		if err != nil {
			return VerifyResult{Failure: VerifyFailureBackend, Err: err}
		}
		if revoked {
			return VerifyResult{Failure: VerifyFailureTokenBlacklisted}
		}
	}
	return VerifyResult{}
}

func safeParse(parse func(string) (*jwt.Claims, error), token string) (claims *jwt.Claims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("%w: decode panic: %v", jwt.ErrMalformed, r)
		}
	}()
	claims, err = parse(token)
	if err == nil && claims == nil {
		err = jwt.ErrMalformed
	}
	return claims, err
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
