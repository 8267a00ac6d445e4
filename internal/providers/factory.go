// Package providers builds the per-cloud pricing adapters from configuration
// and credential bundles.
package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"flavorwise/config"
	"flavorwise/internal/core"
	"flavorwise/internal/credentials"
	"flavorwise/internal/pricetable"
	"flavorwise/internal/providers/alibaba"
	"flavorwise/internal/providers/aws"
	"flavorwise/internal/providers/azure"
	"flavorwise/internal/providers/gcp"
	"flavorwise/internal/providers/nebius"
)

// Deps are the shared collaborators handed to every adapter.
type Deps struct {
	Credentials credentials.Source
	Table       pricetable.Table
	HTTPClient  *http.Client
}

// Build creates one adapter per enabled cloud. A cloud whose credentials
// cannot be read or whose adapter fails to build is logged and skipped, so
// requests for it fail with InvalidArgument. Build fails only when no adapter
// could be created.
func Build(ctx context.Context, cfg *config.Config, deps Deps) (*Registry, error) {
	if deps.Credentials == nil {
		return nil, fmt.Errorf("credentials source is required")
	}

	registry := NewRegistry()
	for _, cloud := range core.CloudTypes {
		if !cfg.ProviderEnabled(string(cloud)) {
			continue
		}
		adapter, err := buildAdapter(ctx, cloud, cfg, deps)
		if err != nil {
			slog.Error("failed to initialize provider adapter", "cloud", cloud, "error", err)
			continue
		}
		registry.Register(adapter)
		slog.Info("provider adapter initialized", "cloud", cloud)
	}

	if registry.Len() == 0 {
		return nil, fmt.Errorf("no provider adapters were successfully initialized")
	}
	return registry, nil
}

func buildAdapter(ctx context.Context, cloud core.CloudType, cfg *config.Config, deps Deps) (core.Adapter, error) {
	freshness := cfg.Pricing.PriceTableFreshness
	p := &cfg.Providers

	switch cloud {
	case core.CloudAWS:
		var creds aws.Credentials
		if err := readBundle(ctx, deps.Credentials, p.AWS.CredentialsPath, &creds); err != nil {
			return nil, err
		}
		return aws.NewFromCredentials(ctx, creds, deps.Table, aws.Options{
			Freshness: freshness,
			RateLimit: p.AWS.RateLimit,
			Burst:     p.AWS.Burst,
		})

	case core.CloudAzure:
		var creds azure.Credentials
		if err := readBundle(ctx, deps.Credentials, p.Azure.CredentialsPath, &creds); err != nil {
			return nil, err
		}
		return azure.New(creds, deps.Table, azure.Options{
			Freshness:     freshness,
			RateLimit:     p.Azure.RateLimit,
			Burst:         p.Azure.Burst,
			HTTPClient:    deps.HTTPClient,
			ManagementURL: p.Azure.BaseURL,
		}), nil

	case core.CloudAlibaba:
		var creds alibaba.Credentials
		if err := readBundle(ctx, deps.Credentials, p.Alibaba.CredentialsPath, &creds); err != nil {
			return nil, err
		}
		return alibaba.New(creds, deps.Table, alibaba.Options{
			Freshness:  freshness,
			RateLimit:  p.Alibaba.RateLimit,
			Burst:      p.Alibaba.Burst,
			HTTPClient: deps.HTTPClient,
			Endpoint:   p.Alibaba.BaseURL,
		}), nil

	case core.CloudNebius:
		var creds nebius.Credentials
		if err := readBundle(ctx, deps.Credentials, p.Nebius.CredentialsPath, &creds); err != nil {
			return nil, err
		}
		platforms := make([]nebius.Platform, 0, len(p.Nebius.Platforms))
		for _, pl := range p.Nebius.Platforms {
			platforms = append(platforms, nebius.Platform{ID: pl.ID, Name: pl.Name})
		}
		return nebius.New(creds, deps.Table, nebius.Options{
			Freshness:     freshness,
			RateLimit:     p.Nebius.RateLimit,
			Burst:         p.Nebius.Burst,
			HTTPClient:    deps.HTTPClient,
			BaseURL:       p.Nebius.BaseURL,
			Currency:      p.Nebius.Currency,
			Platforms:     platforms,
			CoreFractions: p.Nebius.CoreFractions,
		}), nil

	case core.CloudGCP:
		var creds gcp.Credentials
		if err := readBundle(ctx, deps.Credentials, p.GCP.CredentialsPath, &creds); err != nil {
			return nil, err
		}
		return gcp.New(creds, deps.Table, gcp.Options{
			Freshness:  freshness,
			RateLimit:  p.GCP.RateLimit,
			Burst:      p.GCP.Burst,
			HTTPClient: deps.HTTPClient,
			BaseURL:    p.GCP.BaseURL,
		}), nil
	}
	return nil, core.NewInvalidArgumentError(fmt.Sprintf("unsupported cloud type %q", cloud), nil)
}

func readBundle(ctx context.Context, src credentials.Source, path string, v any) error {
	bundle, err := src.Read(ctx, path)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("no credentials at %q: %w", path, err)
		}
		return fmt.Errorf("failed to read credentials at %q: %w", path, err)
	}
	return bundle.Decode(v)
}
