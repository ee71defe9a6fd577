package datastore

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
	"github.com/tphakala/platewatch/internal/observability/metrics"
	"github.com/tphakala/platewatch/internal/plate"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Danger levels understood by the alert priority mapping.
const (
	DangerLow      = "LOW"
	DangerMedium   = "MEDIUM"
	DangerHigh     = "HIGH"
	DangerCritical = "CRITICAL"
)

// Import formats accepted by ImportBlacklist.
const (
	FormatCSV  = "csv"
	FormatYAML = "yaml"
)

var (
	entryValidatorOnce sync.Once
	entryValidator     *validator.Validate
)

func validateEntry(entry *BlacklistEntry) error {
	entryValidatorOnce.Do(func() {
		entryValidator = validator.New()
	})
	return entryValidator.Struct(entry)
}

// prepareEntry normalizes an entry and fills defaults.
func (s *Store) prepareEntry(entry *BlacklistEntry) error {
	entry.Text = plate.Normalize(entry.Text)
	if entry.Text == "" {
		return ErrEmptyText
	}
	entry.DangerLevel = strings.ToUpper(strings.TrimSpace(entry.DangerLevel))
	if entry.DangerLevel == "" {
		entry.DangerLevel = DangerMedium
	}
	if entry.DateAdded.IsZero() {
		entry.DateAdded = s.now().UTC()
	}
	return validateEntry(entry)
}

// Blacklist returns every blacklist entry ordered by text.
func (s *Store) Blacklist(ctx context.Context) ([]BlacklistEntry, error) {
	started := time.Now()
	var entries []BlacklistEntry
	err := s.db.WithContext(ctx).Order("text ASC").Find(&entries).Error
	s.observe(metrics.OpBlacklist, started, err)
	if err != nil {
		return nil, dbError(err, "blacklist", started)
	}
	return entries, nil
}

// AddBlacklistEntry inserts or replaces an entry and flags the identity with
// the same canonical text.
func (s *Store) AddBlacklistEntry(ctx context.Context, entry BlacklistEntry) error {
	if err := s.prepareEntry(&entry); err != nil {
		return err
	}

	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertEntry(tx, &entry)
	})
	if err != nil {
		return dbError(err, "add_blacklist_entry", started)
	}
	s.log.Info("blacklist entry added",
		logger.String("plate", entry.Text),
		logger.String("danger_level", entry.DangerLevel))
	return nil
}

func upsertEntry(tx *gorm.DB, entry *BlacklistEntry) error {
	if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(entry).Error; err != nil {
		return err
	}
	return tx.Model(&Identity{}).
		Where("canonical_text = ?", entry.Text).
		Update("is_blacklisted", true).Error
}

// RemoveBlacklistEntry deletes an entry and clears the identity flag.
func (s *Store) RemoveBlacklistEntry(ctx context.Context, text string) error {
	text = plate.Normalize(text)
	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("text = ?", text).Delete(&BlacklistEntry{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected
		return tx.Model(&Identity{}).
			Where("canonical_text = ?", text).
			Update("is_blacklisted", false).Error
	})
	if err != nil {
		return dbError(err, "remove_blacklist_entry", started)
	}
	if removed == 0 {
		return notFoundError(ErrBlacklistEntryNotFound, text)
	}
	s.log.Info("blacklist entry removed", logger.String("plate", text))
	return nil
}

// ImportBlacklist reads entries from r in the given format ("csv" or
// "yaml") and upserts them. Invalid rows are logged and skipped. It returns
// the number of entries imported.
func (s *Store) ImportBlacklist(ctx context.Context, r io.Reader, format string) (int, error) {
	var (
		entries []BlacklistEntry
		err     error
	)
	switch strings.ToLower(format) {
	case FormatCSV:
		entries, err = parseBlacklistCSV(r)
	case FormatYAML, "yml":
		entries, err = parseBlacklistYAML(r)
	default:
		return 0, errors.New(ErrUnsupportedFormat).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("format", format).
			Build()
	}
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileParsing).
			Context("format", format).
			Build()
	}

	started := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range entries {
			entry := entries[i]
			if err := s.prepareEntry(&entry); err != nil {
				s.log.Warn("skipping invalid blacklist row",
					logger.Int("row", i+1),
					logger.String("plate", entry.Text),
					logger.Error(err))
				continue
			}
			if err := upsertEntry(tx, &entry); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		return 0, dbError(err, "import_blacklist", started)
	}

	s.log.Info("blacklist imported",
		logger.Int("imported", imported),
		logger.Int("rows", len(entries)))
	return imported, nil
}

// parseBlacklistCSV reads rows of text, reason, danger_level, notes. A first
// row whose first column is "text" or "plate" is treated as a header.
func parseBlacklistCSV(r io.Reader) ([]BlacklistEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}

	entries := make([]BlacklistEntry, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 {
			continue
		}
		if i == 0 {
			switch strings.ToLower(strings.TrimSpace(rec[0])) {
			case "text", "plate", "plate_text":
				continue
			}
		}
		entries = append(entries, BlacklistEntry{
			Text:        column(rec, 0),
			Reason:      column(rec, 1),
			DangerLevel: column(rec, 2),
			Notes:       column(rec, 3),
		})
	}
	return entries, nil
}

func column(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

// parseBlacklistYAML accepts either a bare list of entries or a document
// with a top level "blacklist" list.
func parseBlacklistYAML(r io.Reader) ([]BlacklistEntry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading yaml: %w", err)
	}

	var list []BlacklistEntry
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Blacklist []BlacklistEntry `yaml:"blacklist"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	return doc.Blacklist, nil
}
