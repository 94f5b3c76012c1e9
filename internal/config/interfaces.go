package config

import "context"

// SecretProvider resolves secret references (SSM parameter paths) to their
// plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns path -> value for every key it could
	// resolve. Keys it could not find are simply absent from the map; the
	// loader reports them.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
