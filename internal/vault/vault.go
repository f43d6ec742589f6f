// Package vault implements the encrypted credential store that backs tool
// credential resolution. Records are encrypted with AES-256-GCM before they
// reach any backend; plaintext exists only in memory, only for the duration
// of an explicit Get. Secret values are wrapped in a redacting type so they
// cannot leak through logging or serialization by accident.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// ErrNotFound is returned when no credential exists under the requested id,
// and also when a stored record cannot be decrypted: a credential that cannot
// be fully recovered is treated as absent rather than surfaced partially.
var ErrNotFound = errors.New("credential not found")

// ErrInvalidReference is returned for malformed credential reference ids.
var ErrInvalidReference = errors.New("invalid credential reference")

// Secret holds one secret scalar. Its fmt, JSON, and slog renderings are
// always redacted; the plaintext is available only through Reveal.
type Secret struct {
	value string
}

// NewSecret wraps a plaintext value.
func NewSecret(value string) Secret { return Secret{value: value} }

// Reveal returns the plaintext. Callers must not persist or log the result.
func (s Secret) Reveal() string { return s.value }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return s.value == "" }

func (s Secret) String() string { return "[redacted]" }

func (s Secret) GoString() string { return "vault.Secret{[redacted]}" }

// MarshalJSON always emits the redaction marker, never the plaintext.
func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"[redacted]"`), nil }

// LogValue keeps secrets out of structured logs.
func (s Secret) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// CredentialKey is a named secret field within a credential record.
type CredentialKey struct {
	Name  string
	Value Secret
}

// CredentialObject is a named credential record: a globally unique id owning
// a set of named secret fields. Field names are unique within the record;
// field order carries no meaning.
type CredentialObject struct {
	ID   string
	Keys map[string]CredentialKey
}

// NewCredential builds a CredentialObject from plaintext field values.
func NewCredential(id string, fields map[string]string) *CredentialObject {
	keys := make(map[string]CredentialKey, len(fields))
	for name, value := range fields {
		keys[name] = CredentialKey{Name: name, Value: NewSecret(value)}
	}
	return &CredentialObject{ID: id, Keys: keys}
}

// Field returns the plaintext of one field and whether it exists.
func (c *CredentialObject) Field(name string) (string, bool) {
	key, ok := c.Keys[name]
	if !ok {
		return "", false
	}
	return key.Value.Reveal(), true
}

// FieldNames returns the sorted field names. No secret values.
func (c *CredentialObject) FieldNames() []string {
	names := make([]string, 0, len(c.Keys))
	for name := range c.Keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store is the capability contract every vault backend satisfies. Backends
// receive field values already encrypted and return them still encrypted;
// the decrypt step happens in this package, lazily, inside Get.
//
// Save upserts by id and overwrites all fields of an existing record (no
// partial merge). Get returns ErrNotFound for missing or undecryptable
// records. List returns ids in storage order without touching secret
// material. Delete reports whether a record existed and was removed.
// IsAvailable reports record existence without decrypting anything.
type Store interface {
	Save(ctx context.Context, credential *CredentialObject) error
	Get(ctx context.Context, id string) (*CredentialObject, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, id string) (bool, error)
	IsAvailable(ctx context.Context, id string) bool
}

// record is the at-rest shape shared by all backends: field name to
// base64-encoded AES-256-GCM ciphertext.
type record struct {
	ID        string            `json:"id"`
	Fields    map[string]string `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// encryptFields seals every field of a credential for storage.
func encryptFields(cipher *Cipher, credential *CredentialObject) (map[string]string, error) {
	sealed := make(map[string]string, len(credential.Keys))
	for name, key := range credential.Keys {
		ciphertext, err := cipher.Encrypt(key.Value.Reveal())
		if err != nil {
			return nil, fmt.Errorf("encrypting field %q: %w", name, err)
		}
		sealed[name] = ciphertext
	}
	return sealed, nil
}

// decryptFields opens every stored field. A single undecryptable field makes
// the whole record unrecoverable; partial credentials are never returned.
func decryptFields(cipher *Cipher, id string, sealed map[string]string) (*CredentialObject, error) {
	keys := make(map[string]CredentialKey, len(sealed))
	for name, ciphertext := range sealed {
		plaintext, err := cipher.Decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("decrypting field %q of %q: %w", name, id, err)
		}
		keys[name] = CredentialKey{Name: name, Value: NewSecret(plaintext)}
	}
	return &CredentialObject{ID: id, Keys: keys}, nil
}
