package storage

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
)

// Resolver dispatches named storage connections to the provider matching
// their configured type.
type Resolver struct {
	providers map[string]Provider
	cfg       *config.Config
}

// NewResolver creates a Resolver over the given providers, keyed by type.
func NewResolver(providers []Provider, cfg *config.Config) *Resolver {
	byType := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byType[p.Type()] = p
	}
	return &Resolver{providers: byType, cfg: cfg}
}

// DecodeConfig decodes the named entry of the storage configuration map.
func DecodeConfig(cfg *config.Config, name string) (StorageConfig, error) {
	raw, ok := cfg.Tidal.StorageConfigs[name]
	if !ok {
		return StorageConfig{}, fmt.Errorf("storage configuration for name '%s' not found", name)
	}

	var storageCfg StorageConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &storageCfg,
		TagName: "yaml",
	})
	if err != nil {
		return StorageConfig{}, fmt.Errorf("failed to create decoder for storage config '%s': %w", name, err)
	}
	if err := decoder.Decode(raw); err != nil {
		return StorageConfig{}, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return storageCfg, nil
}

// Resolve returns the connection for the named storage entry, routed through
// the provider matching the entry's type.
func (r *Resolver) Resolve(ctx context.Context, name string) (Connection, error) {
	storageCfg, err := DecodeConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}

	provider, ok := r.providers[storageCfg.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", storageCfg.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes every provider's connections.
func (r *Resolver) CloseAll() error {
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			return err
		}
	}
	return nil
}
