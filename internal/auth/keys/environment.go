package keys

import (
	"fmt"
	"os"
	"strings"
)

// Environment names a deployment environment.
type Environment string

// Well-known environments.
const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Environment variables consulted by ActiveEnvironment, in order.
const (
	EnvVarAuthzEnv = "AUTHZ_ENV"
	EnvVarAppEnv   = "APP_ENV"
)

// ParseEnvironment normalizes name. Only lowercase letters, digits, '-' and
// '_' are accepted.
func ParseEnvironment(name string) (Environment, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidEnvironment)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidEnvironment, name)
		}
	}
	return Environment(name), nil
}

// ActiveEnvironment resolves the ambient environment flag with os.LookupEnv.
func ActiveEnvironment() (Environment, error) {
	return activeEnvironment(os.LookupEnv)
}

func activeEnvironment(lookup func(string) (string, bool)) (Environment, error) {
	for _, key := range []string{EnvVarAuthzEnv, EnvVarAppEnv} {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return ParseEnvironment(v)
		}
	}
	return Development, nil
}

func (e Environment) String() string {
	return string(e)
}
