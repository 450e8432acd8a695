package servex

import "os"

// Env is a read-only process-configuration view injected at Engine
// construction (spec.md §4.3 "env()"). Out of scope as a *loader* per
// spec.md §1 — servex never reads a config file or decrypts a secret
// itself — but the Context still needs a typed view to satisfy the
// contract, so Env is the map the caller supplies to New(WithEnv(...)).
//
// Lookups prefer an actual OS environment variable over the supplied map
// entry for the same key, mirroring goswift's ConfigManager
// override-precedence (env var beats config file) while dropping its
// mutability: spec.md calls env() a read-only view.
type Env map[string]string

// Get returns the value for key, preferring a live OS environment
// variable over the value supplied at construction.
func (e Env) Get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return e[key]
}
