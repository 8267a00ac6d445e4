// Package credentials reads provider credential bundles from a YAML file or a
// Redis hash. Bundles are flat string maps decoded into typed structs by the
// provider factory.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"flavorwise/config"
)

// Source types.
const (
	TypeFile  = "file"
	TypeRedis = "redis"
)

// ErrNotFound is returned when no bundle exists at a path.
var ErrNotFound = errors.New("credentials not found")

// Bundle is one provider's credentials, e.g. access_key_id and secret_access_key.
type Bundle map[string]string

// Decode copies the bundle into v using v's yaml tags.
func (b Bundle) Decode(v any) error {
	data, err := yaml.Marshal(map[string]string(b))
	if err != nil {
		return fmt.Errorf("failed to encode credential bundle: %w", err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode credential bundle: %w", err)
	}
	return nil
}

// Source resolves a credential path to a bundle.
type Source interface {
	Read(ctx context.Context, path string) (Bundle, error)
	Close() error
}

// New builds the Source selected by cfg.Type.
func New(cfg config.CredentialsConfig) (Source, error) {
	switch cfg.Type {
	case "", TypeFile:
		return NewFileSource(cfg.File)
	case TypeRedis:
		return NewRedisSource(cfg.Redis.URL, cfg.Redis.Prefix)
	default:
		return nil, fmt.Errorf("unknown credentials source type: %s", cfg.Type)
	}
}

// FileSource serves bundles from a YAML document keyed by path:
//
//	aws:
//	  access_key_id: AKIA...
//	  secret_access_key: ...
type FileSource struct {
	bundles map[string]Bundle
}

// NewFileSource loads path once. Environment references are expanded.
func NewFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}
	return ParseFileSource(data)
}

// ParseFileSource builds a FileSource from YAML content.
func ParseFileSource(data []byte) (*FileSource, error) {
	var bundles map[string]Bundle
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &bundles); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if bundles == nil {
		bundles = map[string]Bundle{}
	}
	return &FileSource{bundles: bundles}, nil
}

// Read returns a copy of the bundle stored at path.
func (s *FileSource) Read(_ context.Context, path string) (Bundle, error) {
	b, ok := s.bundles[path]
	if !ok || len(b) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	out := make(Bundle, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out, nil
}

// Close is a no-op.
func (s *FileSource) Close() error {
	return nil
}
