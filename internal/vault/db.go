package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// credentialModel maps to the "vault_credentials" table. Fields is a JSON
// document of field name to base64 AES-256-GCM ciphertext; the database
// never sees plaintext.
type credentialModel struct {
	ID        string `gorm:"primaryKey;size:512"`
	Fields    string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (credentialModel) TableName() string { return "vault_credentials" }

// DBStore is a database-backed vault (SQLite or PostgreSQL through GORM).
// Same contract as FileStore; the ciphertext layout is identical, only the
// resting place differs.
type DBStore struct {
	db     *gorm.DB
	cipher *Cipher
	logger *slog.Logger
}

// NewSQLiteStore opens a SQLite-backed vault at path. Pure Go driver, WAL
// journal mode for concurrent readers.
func NewSQLiteStore(path string, c *Cipher, slogger *slog.Logger) (*DBStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite vault path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating vault database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite vault: %w", err)
	}
	return newDBStore(db, c, slogger)
}

// NewPostgresStore opens a PostgreSQL-backed vault.
func NewPostgresStore(dsn string, c *Cipher, slogger *slog.Logger) (*DBStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres vault dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(slogger))
	if err != nil {
		return nil, fmt.Errorf("opening postgres vault: %w", err)
	}
	return newDBStore(db, c, slogger)
}

func gormConfig(slogger *slog.Logger) *gorm.Config {
	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
	return &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func newDBStore(db *gorm.DB, c *Cipher, slogger *slog.Logger) (*DBStore, error) {
	if slogger == nil {
		slogger = slog.Default()
	}
	if err := db.AutoMigrate(&credentialModel{}); err != nil {
		return nil, fmt.Errorf("migrating vault schema: %w", err)
	}
	return &DBStore{db: db, cipher: c, logger: slogger}, nil
}

// Save upserts by id, replacing the full field set of an existing record.
func (s *DBStore) Save(ctx context.Context, credential *CredentialObject) error {
	if credential == nil || credential.ID == "" {
		return fmt.Errorf("credential id is required")
	}

	sealed, err := encryptFields(s.cipher, credential)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", credential.ID, err)
	}

	model := credentialModel{ID: credential.ID, Fields: string(fields)}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"fields", "updated_at"}),
		}).
		Create(&model).Error; err != nil {
		return fmt.Errorf("saving credential %q: %w", credential.ID, err)
	}
	return nil
}

// Get loads and decrypts a credential. Undecryptable rows read as absent.
func (s *DBStore) Get(ctx context.Context, id string) (*CredentialObject, error) {
	var model credentialModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting credential %q: %w", id, err)
	}

	var sealed map[string]string
	if err := json.Unmarshal([]byte(model.Fields), &sealed); err != nil {
		s.logger.Warn("credential row is corrupt, treating as absent", slog.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	credential, err := decryptFields(s.cipher, id, sealed)
	if err != nil {
		s.logger.Warn("credential row is not decryptable, treating as absent", slog.String("id", id))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return credential, nil
}

// List returns all credential ids ordered by insertion time.
func (s *DBStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).
		Model(&credentialModel{}).
		Order("created_at, id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	return ids, nil
}

// Delete removes a credential, reporting whether a row existed.
func (s *DBStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&credentialModel{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("deleting credential %q: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// IsAvailable reports row existence without decrypting.
func (s *DBStore) IsAvailable(ctx context.Context, id string) bool {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&credentialModel{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// slogAdapter bridges *slog.Logger into GORM's logger.Writer.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

var _ Store = (*DBStore)(nil)
