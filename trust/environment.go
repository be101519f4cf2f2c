package trust

import (
	"fmt"
	"strings"
)

// Environment is the deployment environment a token was minted in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

var environmentAliases = map[string]Environment{
	"development": EnvDevelopment,
	"dev":         EnvDevelopment,
	"local":       EnvDevelopment,
	"test":        EnvTest,
	"testing":     EnvTest,
	"staging":     EnvStaging,
	"stage":       EnvStaging,
	"production":  EnvProduction,
	"prod":        EnvProduction,
}

// ParseEnvironment normalizes an environment name. Unknown names are an error
// so that a typo can never silently select a permissive policy.
func ParseEnvironment(name string) (Environment, error) {
	env, ok := environmentAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("unknown environment %q", name)
	}
	return env, nil
}

// ProductionLike reports whether e must be treated with production strictness.
func (e Environment) ProductionLike() bool {
	return e == EnvStaging || e == EnvProduction
}

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvTest, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

func (e Environment) String() string { return string(e) }
