package trust

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/tokenguard/jwt"
)

// Audiences recognised by the platform.
const (
	AudiencePlatform = "platform"
	AudienceServices = "services"
	AudienceAdmin    = "admin"
)

const (
	// DefaultClockSkew is the tolerated distance of iat into the future.
	DefaultClockSkew = 60 * time.Second
	// DefaultMaxAge caps token age regardless of the stated expiry.
	DefaultMaxAge = 24 * time.Hour
)

// Options configures NewPolicy.
type Options struct {
	Issuer              string
	ServiceInstanceID   string
	BindServiceInstance bool
	// ExtraAudiences extend every allow-list. Only honoured in development
	// and test; NewPolicy rejects them for staging and production.
	ExtraAudiences []string
	ClockSkew      time.Duration
	MaxAge         time.Duration
}

// Policy is the immutable trust configuration for one process.
type Policy struct {
	env          Environment
	issuer       string
	instanceID   string
	bindInstance bool
	permissive   bool
	audiences    map[jwt.TokenType]map[string]struct{}
	skew         time.Duration
	maxAge       time.Duration
}

// NewPolicy derives the trust policy for env.
func NewPolicy(env Environment, opts Options) (Policy, error) {
	if !env.Valid() {
		return Policy{}, fmt.Errorf("trust: unknown environment %q", env)
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return Policy{}, errors.New("trust: issuer must not be empty")
	}
	if opts.BindServiceInstance && opts.ServiceInstanceID == "" {
		return Policy{}, errors.New("trust: service instance binding requires a service instance id")
	}
	if env.ProductionLike() && len(opts.ExtraAudiences) > 0 {
		return Policy{}, fmt.Errorf("trust: extra audiences are not allowed in %s", env)
	}
	skew := opts.ClockSkew
	if skew < 0 {
		return Policy{}, errors.New("trust: clock skew must not be negative")
	}
	if skew == 0 {
		skew = DefaultClockSkew
	}
	maxAge := opts.MaxAge
	if maxAge < 0 {
		return Policy{}, errors.New("trust: max age must not be negative")
	}
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}

	p := Policy{
		env:          env,
		issuer:       issuer,
		instanceID:   opts.ServiceInstanceID,
		bindInstance: opts.BindServiceInstance,
		permissive:   !env.ProductionLike(),
		skew:         skew,
		maxAge:       maxAge,
		audiences: map[jwt.TokenType]map[string]struct{}{
			jwt.TypeAccess:  {AudiencePlatform: {}, AudienceAdmin: {}},
			jwt.TypeRefresh: {AudiencePlatform: {}},
			jwt.TypeService: {AudienceServices: {}},
		},
	}

	if p.permissive {
		for _, aud := range opts.ExtraAudiences {
			aud = strings.TrimSpace(aud)
			if aud == "" {
				continue
			}
			for _, set := range p.audiences {
				set[aud] = struct{}{}
			}
		}
	}

	return p, nil
}

// Environment returns the environment the policy was built for.
func (p Policy) Environment() Environment { return p.env }

// Issuer returns the platform issuer.
func (p Policy) Issuer() string { return p.issuer }

// ServiceInstanceID returns the id stamped into issued tokens, if any.
func (p Policy) ServiceInstanceID() string { return p.instanceID }

// Permissive reports whether development extensions are active. It is false
// for staging and production.
func (p Policy) Permissive() bool { return p.permissive }

// ClockSkew returns the tolerated iat drift into the future.
func (p Policy) ClockSkew() time.Duration { return p.skew }

// MaxAge returns the token age cap.
func (p Policy) MaxAge() time.Duration { return p.maxAge }

// AudienceFor returns the audience minted into tokens of type t.
func AudienceFor(t jwt.TokenType) string {
	if t == jwt.TypeService {
		return AudienceServices
	}
	return AudiencePlatform
}

// AllowedAudiences returns the sorted allow-list for t.
func (p Policy) AllowedAudiences(t jwt.TokenType) []string {
	set := p.audiences[t]
	out := make([]string, 0, len(set))
	for aud := range set {
		out = append(out, aud)
	}
	sort.Strings(out)
	return out
}

func (p Policy) audienceAllowed(t jwt.TokenType, aud []string) bool {
	set, ok := p.audiences[t]
	if !ok {
		return false
	}
	for _, a := range aud {
		if _, ok := set[a]; ok {
			return true
		}
	}
	return false
}

func (p Policy) environmentAllowed(claimed string) bool {
	if claimed == "" {
		return true
	}
	env, err := ParseEnvironment(claimed)
	if err != nil {
		return false
	}
	if p.permissive {
		return !env.ProductionLike()
	}
	return env == p.env
}
