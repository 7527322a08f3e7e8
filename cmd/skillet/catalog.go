package main

import (
	"context"

	"github.com/jingkaihe/skillet/pkg/catalog"
	"github.com/jingkaihe/skillet/pkg/config"
)

// newBuilder assembles a catalog builder from the loaded configuration
func newBuilder(cfg *config.Config) (*catalog.Builder, error) {
	var opts []catalog.Option
	if len(cfg.CatalogRoots) > 0 {
		opts = append(opts, catalog.WithRoots(cfg.CatalogRoots...))
	} else {
		opts = append(opts, catalog.WithDefaultRoots())
	}
	if len(cfg.AllowPatterns) > 0 {
		opts = append(opts, catalog.WithAllowPatterns(cfg.AllowPatterns...))
	}
	if len(cfg.DenyPatterns) > 0 {
		opts = append(opts, catalog.WithDenyPatterns(cfg.DenyPatterns...))
	}
	return catalog.NewBuilder(opts...)
}

// buildStore builds the catalog once and publishes it through a store
func buildStore(ctx context.Context, cfg *config.Config) (*catalog.Store, *catalog.Builder, error) {
	builder, err := newBuilder(cfg)
	if err != nil {
		return nil, nil, err
	}
	idx, err := builder.Build(ctx)
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewStore(idx), builder, nil
}
