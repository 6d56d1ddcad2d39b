package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the durable backing for the tracker table (address -> timestamp).
type Store interface {
	// Load returns the persisted table. A store that has never been written
	// returns an empty table and no error.
	Load(ctx context.Context) (map[string]string, error)
	// Save durably persists the full table.
	Save(ctx context.Context, entries map[string]string) error
}

// JSONStore keeps the table in a JSON object file. Saves replace the file
// atomically through a temp file and rename.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store backed by the JSON file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Load reads the JSON file. A missing or empty file is an empty table.
// Non-string values are kept in their JSON form so they read back as
// malformed timestamps instead of failing the load.
func (s *JSONStore) Load(_ context.Context) (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracker file: %w", err)
	}
	if len(data) == 0 {
		return map[string]string{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse tracker file %s: %w", s.path, err)
	}

	entries := make(map[string]string, len(raw))
	for email, v := range raw {
		var ts string
		if err := json.Unmarshal(v, &ts); err != nil {
			ts = string(v)
		}
		entries[email] = ts
	}
	return entries, nil
}

// Save writes the table to a temp file in the same directory and renames it
// over the target.
func (s *JSONStore) Save(_ context.Context, entries map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create tracker directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tracker: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace tracker file: %w", err)
	}
	return nil
}

// deliveryRow is the SQLite row for one tracker entry.
type deliveryRow struct {
	Email  string `gorm:"primaryKey"`
	SentAt string `gorm:"not null"`
}

func (deliveryRow) TableName() string {
	return "deliveries"
}

// SQLStore keeps the table in a SQL database through GORM.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore creates the deliveries table if needed and returns the store.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&deliveryRow{}); err != nil {
		return nil, fmt.Errorf("migrate deliveries: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// Load reads every row.
func (s *SQLStore) Load(ctx context.Context) (map[string]string, error) {
	var rows []deliveryRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load deliveries: %w", err)
	}

	entries := make(map[string]string, len(rows))
	for _, r := range rows {
		entries[r.Email] = r.SentAt
	}
	return entries, nil
}

// saveBatchSize keeps each upsert statement well under SQLite's bind
// variable limit.
const saveBatchSize = 500

// Save upserts every entry in one transaction, in statements of
// saveBatchSize rows. Rows are never deleted.
func (s *SQLStore) Save(ctx context.Context, entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([]deliveryRow, 0, len(entries))
	for email, ts := range entries {
		rows = append(rows, deliveryRow{Email: email, SentAt: ts})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}},
			DoUpdates: clause.AssignmentColumns([]string{"sent_at"}),
		}).CreateInBatches(&rows, saveBatchSize).Error
	})
	if err != nil {
		return fmt.Errorf("save deliveries: %w", err)
	}
	return nil
}
