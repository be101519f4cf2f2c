package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokenguard/jwt"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureUserLookup
	RefreshFailureIssueAccess
	RefreshFailureIssueRefresh
)

// ErrNoUserProvider is returned when refresh runs without a user lookup.
var ErrNoUserProvider = errors.New("refresh requires a user provider")

// RefreshUser is the current user view used to mint the new access token.
type RefreshUser struct {
	Subject     string
	Email       string
	Permissions []string
}

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	Verify       VerifyResult
	Subject      string
	AccessToken  string
	RefreshToken string
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Consume      func(ctx context.Context, token string, expected jwt.TokenType) VerifyResult
	LookupUser   func(ctx context.Context, subject string) (RefreshUser, error)
	IssueAccess  func(ctx context.Context, subject, email string, permissions []string) (string, error)
	IssueRefresh func(ctx context.Context, subject string) (string, error)
}

// RunRefresh consumes a refresh token and issues a fresh access and refresh
// pair for the current user attributes.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	verified := deps.Consume(ctx, refreshToken, jwt.TypeRefresh)
	if verified.Failure != VerifyFailureNone {
		return RefreshResult{Failure: RefreshFailureVerify, Err: verified.Err, Verify: verified}
	}
	subject := verified.Claims.Subject

	if deps.LookupUser == nil {
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: ErrNoUserProvider, Verify: verified, Subject: subject}
	}
	user, err := deps.LookupUser(ctx, subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, Verify: verified, Subject: subject}
	}
	if user.Subject != "" && user.Subject != subject {
		return RefreshResult{
			Failure: RefreshFailureUserLookup,
			Err:     errors.New("user provider returned a different subject"),
			Verify:  verified,
			Subject: subject,
		}
	}

	access, err := deps.IssueAccess(ctx, subject, user.Email, user.Permissions)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, Verify: verified, Subject: subject}
	}
	refresh, err := deps.IssueRefresh(ctx, subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueRefresh, Err: err, Verify: verified, Subject: subject}
	}

	return RefreshResult{
		Verify:       verified,
		Subject:      subject,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
