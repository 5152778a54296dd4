// Package secrets is the boundary to the credential lookup service. The
// bridge only needs key-value reads; the default source is the process
// environment.
package secrets

import "os"

// Source resolves a named credential. A false second return means the
// credential is not configured, which callers treat as absent rather than
// an error.
type Source interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads credentials from the process environment.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// Static is a fixed map of credentials, used in tests.
type Static map[string]string

func (s Static) Lookup(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}
