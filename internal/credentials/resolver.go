package credentials

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/zanatools/zana/internal/vault"
)

// KeyStore is the slice of the vault the resolver needs. Provider keys live
// one record per provider, keyed by the bare provider name, with a single
// api_key field.
type KeyStore interface {
	Get(ctx context.Context, id string) (*vault.CredentialObject, error)
	IsAvailable(ctx context.Context, id string) bool
}

// Resolver resolves provider API keys and provider/model pairs from, in
// priority order, explicit parameters, the encrypted vault, and the
// environment. A nil store skips the vault tier.
type Resolver struct {
	store  KeyStore
	logger *slog.Logger
}

func NewResolver(store KeyStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger}
}

// ResolveAPIKey returns the API key for a provider, checking the explicit
// parameter, then the vault, then the provider's environment variable. A
// failing vault lookup is logged and skipped so a broken store degrades to
// env resolution instead of failing outright. When every source misses the
// caller gets a *NoKeyError; there is no cross-provider fallback. The key
// itself is never logged.
func (r *Resolver) ResolveAPIKey(ctx context.Context, provider, explicitKey string) (string, error) {
	if strings.TrimSpace(provider) == "" {
		return "", ErrProviderRequired
	}
	name := Normalize(provider)

	if explicitKey != "" {
		r.logger.Debug("using explicit api key", "provider", name)
		return explicitKey, nil
	}

	if r.store != nil {
		if key, ok := r.storedKey(ctx, name); ok {
			r.logger.Debug("resolved api key from credential store", "provider", name)
			return key, nil
		}
	}

	// Env resolution only covers known providers. For anything else the
	// conventional variable name shows up in the error as a suggestion.
	if spec, ok := providerSpecs[name]; ok {
		if key := os.Getenv(spec.EnvVar); key != "" {
			r.logger.Debug("resolved api key from environment", "provider", name, "env_var", spec.EnvVar)
			return key, nil
		}
	}

	return "", &NoKeyError{Provider: name}
}

// ResolveProviderAndModel resolves which provider and model to use. Explicit
// values pass through untouched. A missing provider is auto-detected first
// from the vault, then from the environment, walking the fixed detection
// order; auto-detection finding nothing returns a *NoProviderError. A
// missing model falls back to the provider's default for the modality.
func (r *Resolver) ResolveProviderAndModel(ctx context.Context, provider, model string, useVision bool) (string, string, error) {
	name := Normalize(provider)

	if name != "" && model != "" {
		return name, model, nil
	}

	if name == "" && r.store != nil {
		for _, candidate := range detectionOrder {
			if r.store.IsAvailable(ctx, candidate) {
				name = candidate
				r.logger.Info("auto-detected provider from credential store", "provider", candidate)
				break
			}
		}
	}

	if name == "" {
		for _, candidate := range detectionOrder {
			if os.Getenv(providerSpecs[candidate].EnvVar) != "" {
				name = candidate
				r.logger.Info("auto-detected provider from environment", "provider", candidate)
				break
			}
		}
	}

	if name == "" {
		return "", "", &NoProviderError{}
	}

	if model == "" {
		model = DefaultModel(name, useVision)
		r.logger.Debug("using default model", "provider", name, "model", model)
	}
	return name, model, nil
}

// storedKey looks the provider key up in the vault. Misses and errors both
// come back false; errors other than a plain miss are logged so a corrupt
// store is visible without masking env configuration.
func (r *Resolver) storedKey(ctx context.Context, provider string) (string, bool) {
	cred, err := r.store.Get(ctx, provider)
	if err != nil {
		if !errors.Is(err, vault.ErrNotFound) {
			r.logger.Warn("credential store lookup failed", "provider", provider, "error", err)
		}
		return "", false
	}
	key, ok := cred.Field(APIKeyField)
	if !ok || key == "" {
		return "", false
	}
	return key, true
}
