package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// authNamespace prefixes every website login credential id, keeping them
// apart from provider API-key records which use the bare provider name.
const authNamespace = "auth:"

// indexVersion is the advisory index schema version.
const indexVersion = "1.0"

// AuthStore manages website login credentials on top of a vault Store.
// Every record carries mandatory username/password fields plus optional
// metadata fields (for example a two-factor secret). Passwords are only
// decrypted on explicit retrieval.
//
// The store also maintains an advisory metadata index next to file-backed
// vaults. The index is bookkeeping, never the source of truth: failures
// around it are logged and swallowed, and a corrupt index is reinitialized
// rather than surfaced as an error.
type AuthStore struct {
	store  Store
	dir    string // vault storage directory; empty for non-file backends
	logger *slog.Logger
}

// NewAuthStore wraps a vault store. dir is the file backend's storage
// directory (empty when the vault is database-backed, which skips index
// maintenance). The metadata index is ensured as a construction side effect.
func NewAuthStore(store Store, dir string, logger *slog.Logger) *AuthStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthStore{store: store, dir: dir, logger: logger}
	s.ensureIndex()
	return s
}

// ValidateRefID rejects empty reference ids and ids containing the
// namespace separator.
func ValidateRefID(refID string) error {
	if refID == "" || strings.Contains(refID, ":") {
		return fmt.Errorf("%w: ref id must be non-empty and must not contain ':'", ErrInvalidReference)
	}
	return nil
}

func namespacedID(refID string) string { return authNamespace + refID }

// SaveAuthCredential stores username/password (plus any non-empty metadata
// fields) under the namespaced reference id.
func (s *AuthStore) SaveAuthCredential(ctx context.Context, refID, username, password string, metadata map[string]string) error {
	if err := ValidateRefID(refID); err != nil {
		return err
	}

	fields := map[string]string{
		"username": username,
		"password": password,
	}
	for name, value := range metadata {
		if value != "" {
			fields[name] = value
		}
	}

	if err := s.store.Save(ctx, NewCredential(namespacedID(refID), fields)); err != nil {
		return fmt.Errorf("saving auth credential %q: %w", refID, err)
	}

	s.logger.Debug("saved auth credential", slog.String("ref", refID))
	return nil
}

// GetAuthCredential returns the decrypted field map for a reference, or
// ErrNotFound. The vault layer already guarantees all-or-nothing decryption,
// so a partial credential can never be surfaced.
func (s *AuthStore) GetAuthCredential(ctx context.Context, refID string) (map[string]string, error) {
	if err := ValidateRefID(refID); err != nil {
		return nil, err
	}

	credential, err := s.store.Get(ctx, namespacedID(refID))
	if err != nil {
		return nil, err
	}

	fields := make(map[string]string, len(credential.Keys))
	for name, key := range credential.Keys {
		fields[name] = key.Value.Reveal()
	}
	return fields, nil
}

// ListAuthCredentials returns every stored reference id, namespace stripped.
func (s *AuthStore) ListAuthCredentials(ctx context.Context) ([]string, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing auth credentials: %w", err)
	}

	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		if strings.HasPrefix(id, authNamespace) {
			refs = append(refs, strings.TrimPrefix(id, authNamespace))
		}
	}
	return refs, nil
}

// DeleteAuthCredential removes a credential, reporting whether it existed.
func (s *AuthStore) DeleteAuthCredential(ctx context.Context, refID string) (bool, error) {
	if err := ValidateRefID(refID); err != nil {
		return false, err
	}
	deleted, err := s.store.Delete(ctx, namespacedID(refID))
	if err != nil {
		return false, fmt.Errorf("deleting auth credential %q: %w", refID, err)
	}
	return deleted, nil
}

// IsAvailable reports whether a credential exists for the reference without
// decrypting it.
func (s *AuthStore) IsAvailable(ctx context.Context, refID string) bool {
	if ValidateRefID(refID) != nil {
		return false
	}
	return s.store.IsAvailable(ctx, namespacedID(refID))
}

// authIndex is the advisory metadata file shape.
type authIndex struct {
	Credentials  map[string]indexEntry `json:"credentials"`
	Version      string                `json:"version"`
	LastModified string                `json:"last_modified"`
}

// indexEntry records when a reference was last observed by reconciliation.
// No secret material, ever.
type indexEntry struct {
	SeenAt string `json:"seen_at"`
}

func (s *AuthStore) indexPath() string {
	return filepath.Join(s.dir, metadataDirName, "index.json")
}

// ensureIndex creates a well-formed metadata index if missing and heals a
// corrupt one. Every failure here is logged and swallowed: the vault is
// authoritative, the index is not.
func (s *AuthStore) ensureIndex() {
	if s.dir == "" {
		s.logger.Debug("skipping index initialization (non-file vault backend)")
		return
	}

	path := s.indexPath()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.writeIndex(authIndex{Credentials: map[string]indexEntry{}}); err != nil {
			s.logger.Warn("failed to create credential index", slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("created credential index", slog.String("path", path))
		return
	}
	if err != nil {
		s.logger.Warn("failed to read credential index", slog.String("error", err.Error()))
		return
	}

	var index authIndex
	if err := json.Unmarshal(data, &index); err != nil {
		s.logger.Warn("corrupted credential index detected, reinitializing", slog.String("path", path))
		index = authIndex{}
	}
	if index.Credentials == nil {
		index.Credentials = map[string]indexEntry{}
		if err := s.writeIndex(index); err != nil {
			s.logger.Warn("failed to heal credential index", slog.String("error", err.Error()))
			return
		}
		s.logger.Debug("healed credential index", slog.String("path", path))
	}
}

// ReconcileIndex rewrites the index entries from the authoritative vault
// listing. Run periodically in serve mode; safe to call at any time.
func (s *AuthStore) ReconcileIndex(ctx context.Context) error {
	if s.dir == "" {
		return nil
	}

	refs, err := s.ListAuthCredentials(ctx)
	if err != nil {
		return fmt.Errorf("reconciling credential index: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	index := authIndex{Credentials: make(map[string]indexEntry, len(refs))}
	for _, ref := range refs {
		index.Credentials[ref] = indexEntry{SeenAt: now}
	}
	if err := s.writeIndex(index); err != nil {
		return fmt.Errorf("reconciling credential index: %w", err)
	}

	s.logger.Debug("reconciled credential index", slog.Int("credentials", len(refs)))
	return nil
}

func (s *AuthStore) writeIndex(index authIndex) error {
	if index.Version == "" {
		index.Version = indexVersion
	}
	index.LastModified = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	path := s.indexPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
