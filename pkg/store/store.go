package store

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"codewatch/models"
)

// CodeStore owns the persisted table of discovered codes. One store is
// opened at process start and held for the process lifetime.
type CodeStore struct {
	db *gorm.DB
}

// Stats is the aggregate view over the codes table. DiscoveredToday counts
// rows found since the database server's local midnight.
type Stats struct {
	Total           int64 `json:"total"`
	Unused          int64 `json:"unused"`
	Used            int64 `json:"used"`
	DiscoveredToday int64 `json:"discovered_today"`
}

// Open connects to Postgres and runs the idempotent schema migration.
func Open(dsn string) (*CodeStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&models.Code{}); err != nil {
		log.Printf("migration warning (codes): %v", err)
	}
	return &CodeStore{db: db}, nil
}

// New wraps an existing gorm handle. Used by tests and the process tools.
func New(db *gorm.DB) *CodeStore {
	return &CodeStore{db: db}
}

// SaveCodesIfNew inserts each candidate whose code value is not yet stored
// and returns exactly the newly inserted rows, IDs assigned. Candidates that
// already exist are skipped; a unique-constraint violation from a concurrent
// insert counts as "already exists", not as a failure.
func (s *CodeStore) SaveCodesIfNew(candidates []models.Code) ([]models.Code, error) {
	var inserted []models.Code
	seen := map[string]struct{}{}
	for _, cand := range candidates {
		if cand.Code == "" {
			continue
		}
		if _, ok := seen[cand.Code]; ok {
			continue
		}
		seen[cand.Code] = struct{}{}

		var count int64
		if err := s.db.Model(&models.Code{}).Where("code = ?", cand.Code).Count(&count).Error; err != nil {
			log.Printf("ERROR checking code %s: %v", cand.Code, err)
			continue
		}
		if count > 0 {
			continue
		}
		rec := cand
		rec.ID = 0
		if err := s.db.Create(&rec).Error; err != nil {
			if isUniqueConstraintError(err) {
				// lost an insert race, the code is stored either way
				continue
			}
			log.Printf("ERROR saving code %s: %v", cand.Code, err)
			continue
		}
		inserted = append(inserted, rec)
	}
	return inserted, nil
}

// UnusedCodes returns codes not yet marked used, newest discovery first.
func (s *CodeStore) UnusedCodes() ([]models.Code, error) {
	var codes []models.Code
	if err := s.db.Where("is_used = ?", false).Order("date_found desc").Find(&codes).Error; err != nil {
		return nil, fmt.Errorf("list unused codes: %w", err)
	}
	return codes, nil
}

// MarkCodeUsed flips is_used for the matching row. It returns false when the
// code is absent or already used; the used flag never transitions back.
func (s *CodeStore) MarkCodeUsed(code string) (bool, error) {
	res := s.db.Model(&models.Code{}).
		Where("code = ? AND is_used = ?", code, false).
		Update("is_used", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark code used: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Stats computes the aggregate counts in a single query.
func (s *CodeStore) Stats() (Stats, error) {
	var st Stats
	err := s.db.Raw(`
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT is_used) AS unused,
			COUNT(*) FILTER (WHERE is_used) AS used,
			COUNT(*) FILTER (WHERE date_found >= date_trunc('day', now())) AS discovered_today
		FROM codes
	`).Scan(&st).Error
	if err != nil {
		return Stats{}, fmt.Errorf("stats query: %w", err)
	}
	return st, nil
}

// Close releases the underlying connection.
func (s *CodeStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NowCandidate builds a candidate record for a code discovered at t.
func NowCandidate(code string, t time.Time) models.Code {
	return models.Code{Code: code, DateFound: t, IsUsed: false}
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint") || strings.Contains(s, "already exists")
}
