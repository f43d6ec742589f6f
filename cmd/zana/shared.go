package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/zanatools/zana/internal/config"
	"github.com/zanatools/zana/internal/observability"
	"github.com/zanatools/zana/internal/vault"
)

// SharedComponents holds the subsystems every mode needs: configuration,
// logging, observability, and the opened vault. Built once by initShared,
// torn down by Cleanup.
type SharedComponents struct {
	Config *config.Config
	Logger *slog.Logger

	Obs   *observability.Observability // nil = observability disabled
	Store vault.Store                  // instrumented when metrics are enabled
	Auth  *vault.AuthStore

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig loads the config file, honoring the ZANA_CONFIG override. A
// missing file is not an error: the server runs zero-config over stdio
// with a file vault under the default data directory.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("ZANA_CONFIG", configPath)
	if path == "" {
		return config.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger from config. Always stderr: stdout
// belongs to the MCP stdio transport.
func newLogger(cfg *config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.LogFormat() == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// openVault opens the configured vault backend and returns the store plus
// the storage directory (empty for database backends, which need no
// metadata index).
func openVault(cfg *config.Config, logger *slog.Logger) (vault.Store, string, error) {
	key, err := vaultKey(cfg)
	if err != nil {
		return nil, "", err
	}
	cipher, err := vault.NewCipher(key)
	if err != nil {
		return nil, "", fmt.Errorf("initializing vault cipher: %w", err)
	}

	switch backend := cfg.Vault.BackendName(); backend {
	case "file":
		store, err := vault.NewFileStore(cfg.VaultPath(), cipher, logger)
		if err != nil {
			return nil, "", fmt.Errorf("opening file vault: %w", err)
		}
		return store, store.Dir(), nil
	case "sqlite":
		store, err := vault.NewSQLiteStore(cfg.VaultSQLitePath(), cipher, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	case "postgres":
		store, err := vault.NewPostgresStore(cfg.Vault.PostgresDSN, cipher, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", fmt.Errorf("unknown vault backend: %q", backend)
	}
}

// vaultKey resolves the encryption key: a passphrase in the configured
// environment variable wins, otherwise a generated key file under the data
// directory is loaded or created.
func vaultKey(cfg *config.Config) ([]byte, error) {
	if passphrase := os.Getenv(cfg.Vault.KeyEnvName()); passphrase != "" {
		return vault.DeriveKey(passphrase), nil
	}
	key, err := vault.LoadOrCreateKeyFile(cfg.VaultKeyFile())
	if err != nil {
		return nil, fmt.Errorf("loading vault key: %w", err)
	}
	return key, nil
}

// initShared performs the common initialization for serve mode. Callers
// must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// Vault.
	store, vaultDir, err := openVault(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, err
	}
	logger.Debug("vault opened", slog.String("backend", cfg.Vault.BackendName()))

	if obs != nil && obs.Metrics != nil {
		sc.Store = observability.NewInstrumentedStore(store, obs.Metrics, obs.TracerOrNil())
	} else {
		sc.Store = store
	}

	sc.Auth = vault.NewAuthStore(sc.Store, vaultDir, logger)

	return sc, nil
}
