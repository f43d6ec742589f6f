package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// metadataDirName holds the advisory index maintained by the auth store.
const metadataDirName = "metadata"

// FileStore is the default vault backend: one encrypted JSON record per
// credential inside a single directory. Record filenames are the URL-safe
// base64 encoding of the credential id, so ids may carry characters like
// the ':' namespace separator without touching filesystem semantics.
//
// Writers are not coordinated across processes; callers needing concurrent
// safety must serialize externally.
type FileStore struct {
	dir    string
	cipher *Cipher
	logger *slog.Logger
}

// NewFileStore opens (creating if necessary, mode 0700) a file-backed vault
// rooted at dir.
func NewFileStore(dir string, cipher *Cipher, logger *slog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("vault directory is required")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating vault directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, cipher: cipher, logger: logger}, nil
}

// Dir returns the storage directory. The auth store uses it to locate the
// metadata index.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) recordPath(id string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(id)) + ".json"
	return filepath.Join(s.dir, name)
}

// Save upserts a credential, overwriting all fields of an existing record.
// The write goes through a temp file and rename so a crash never leaves a
// half-written record behind.
func (s *FileStore) Save(_ context.Context, credential *CredentialObject) error {
	if credential == nil || credential.ID == "" {
		return fmt.Errorf("credential id is required")
	}

	sealed, err := encryptFields(s.cipher, credential)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := record{ID: credential.ID, Fields: sealed, CreatedAt: now, UpdatedAt: now}
	if existing, err := s.readRecord(credential.ID); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", credential.ID, err)
	}

	path := s.recordPath(credential.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing credential %q: %w", credential.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing credential %q: %w", credential.ID, err)
	}
	return nil
}

// Get loads and decrypts a credential. A record with any undecryptable
// field, or a corrupt record file, is reported as not found, never
// partially.
func (s *FileStore) Get(_ context.Context, id string) (*CredentialObject, error) {
	rec, err := s.readRecord(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if errors.Is(err, errCorruptRecord) {
			s.logger.Warn("credential record is corrupt, treating as absent",
				slog.String("id", id))
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}

	credential, err := decryptFields(s.cipher, id, rec.Fields)
	if err != nil {
		s.logger.Warn("credential record is not decryptable, treating as absent",
			slog.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return credential, nil
}

// List returns every stored credential id in directory enumeration order.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing vault directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Not one of ours (stray file in the vault directory).
			continue
		}
		ids = append(ids, string(raw))
	}
	return ids, nil
}

// Delete removes a credential, reporting whether it existed.
func (s *FileStore) Delete(_ context.Context, id string) (bool, error) {
	err := os.Remove(s.recordPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting credential %q: %w", id, err)
	}
	return true, nil
}

// IsAvailable reports record existence without decrypting anything.
func (s *FileStore) IsAvailable(_ context.Context, id string) bool {
	_, err := os.Stat(s.recordPath(id))
	return err == nil
}

// errCorruptRecord marks a record file that exists but does not decode.
var errCorruptRecord = errors.New("corrupt credential record")

func (s *FileStore) readRecord(id string) (*record, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errCorruptRecord, id, err)
	}
	return &rec, nil
}

var _ Store = (*FileStore)(nil)
