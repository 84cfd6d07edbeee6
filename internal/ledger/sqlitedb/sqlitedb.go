// Package sqlitedb is the sqlite-backed ledger. Optimistic concurrency is
// carried by a version column on obligations; at-most-one obligation per
// logical key is carried by a unique index over (category_key,
// provider_key, period).
package sqlitedb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/billrecon/internal/ledger"
	"fintrack/billrecon/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type obligationRow struct {
	ID            string `gorm:"primaryKey"`
	CategoryKey   string `gorm:"index;uniqueIndex:idx_logical_key"`
	ProviderKey   string `gorm:"uniqueIndex:idx_logical_key"`
	Period        string `gorm:"uniqueIndex:idx_logical_key"`
	DisplayName   string
	Provider      string
	Category      string
	NominalAmount decimal.Decimal `gorm:"type:numeric"`
	PeriodStart   time.Time
	DueDate       time.Time
	Frequency     string
	Status        string
	TotalPaid     decimal.Decimal `gorm:"type:numeric"`
	AutoCreated   bool
	LastSyncedAt  time.Time
	Version       int64
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (obligationRow) TableName() string { return "obligations" }

type paymentRow struct {
	ID                  string `gorm:"primaryKey"`
	ObligationID        string `gorm:"index;uniqueIndex:idx_source_once"`
	SourceTransactionID string `gorm:"uniqueIndex:idx_source_once"`
	Date                time.Time
	Amount              decimal.Decimal `gorm:"type:numeric"`
	Method              string
	MerchantText        string
	Description         string
	SyncedAt            time.Time
}

func (paymentRow) TableName() string { return "payments" }

// Store is a gorm-backed Ledger implementation on sqlite.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the sqlite database at dbPath and migrates
// the schema.
func NewStore(dbPath string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.AutoMigrate(&obligationRow{}, &paymentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// GetByID implements ledger.Ledger.
func (s *Store) GetByID(ctx context.Context, id string) (models.Obligation, error) {
	var row obligationRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Obligation{}, ledger.ErrNotFound
	}
	if err != nil {
		return models.Obligation{}, fmt.Errorf("failed to load obligation %s: %w", id, err)
	}
	return s.hydrate(ctx, row)
}

// ListPartition implements ledger.Ledger. Rows come back in creation
// order so the matcher's first-match policy is stable.
func (s *Store) ListPartition(ctx context.Context, categoryKey string) ([]models.Obligation, error) {
	var rows []obligationRow
	err := s.db.WithContext(ctx).
		Where("category_key = ?", categoryKey).
		Order("created_at, id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan partition %s: %w", categoryKey, err)
	}

	out := make([]models.Obligation, 0, len(rows))
	for _, row := range rows {
		ob, err := s.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, ob)
	}
	return out, nil
}

// Update implements ledger.Ledger. The obligation row is updated with a
// guarded write on the version column; payment rows are inserted
// append-only with conflicts ignored, so a retried append stays
// idempotent.
func (s *Store) Update(ctx context.Context, ob models.Obligation) (models.Obligation, error) {
	var updated models.Obligation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := toRow(&ob)
		res := tx.Model(&obligationRow{}).
			Where("id = ? AND version = ?", ob.ID, ob.Version).
			Updates(map[string]interface{}{
				"display_name":   row.DisplayName,
				"provider":       row.Provider,
				"provider_key":   row.ProviderKey,
				"period":         row.Period,
				"category":       row.Category,
				"nominal_amount": row.NominalAmount,
				"period_start":   row.PeriodStart,
				"due_date":       row.DueDate,
				"frequency":      row.Frequency,
				"status":         row.Status,
				"total_paid":     row.TotalPaid,
				"last_synced_at": row.LastSyncedAt,
				"version":        ob.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update obligation %s: %w", ob.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&obligationRow{}).Where("id = ?", ob.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("failed to check obligation %s: %w", ob.ID, err)
			}
			if count == 0 {
				return ledger.ErrNotFound
			}
			return ledger.ErrConflict
		}

		if len(ob.Payments) > 0 {
			payments := make([]paymentRow, 0, len(ob.Payments))
			for _, p := range ob.Payments {
				payments = append(payments, toPaymentRow(ob.ID, p))
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&payments).Error; err != nil {
				return fmt.Errorf("failed to store payments for %s: %w", ob.ID, err)
			}
		}

		updated = ob.Clone()
		updated.Version = ob.Version + 1
		return nil
	})
	if err != nil {
		return models.Obligation{}, err
	}
	return updated, nil
}

// CreateIfAbsent implements ledger.Ledger. A duplicate-key error on the
// logical key index means another writer won the create race; the
// existing obligation is loaded and returned instead.
func (s *Store) CreateIfAbsent(ctx context.Context, ob models.Obligation) (models.Obligation, bool, error) {
	row := toRow(&ob)
	row.Version = 1

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(ob.Payments) > 0 {
			payments := make([]paymentRow, 0, len(ob.Payments))
			for _, p := range ob.Payments {
				payments = append(payments, toPaymentRow(ob.ID, p))
			}
			if err := tx.Create(&payments).Error; err != nil {
				return fmt.Errorf("failed to store payments for %s: %w", ob.ID, err)
			}
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, loadErr := s.getByLogicalKey(ctx, row.CategoryKey, row.ProviderKey, row.Period)
		if loadErr != nil {
			return models.Obligation{}, false, loadErr
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Obligation{}, false, fmt.Errorf("failed to create obligation %s: %w", ob.ID, err)
	}

	created := ob.Clone()
	created.Version = 1
	return created, true, nil
}

func (s *Store) getByLogicalKey(ctx context.Context, categoryKey, providerKey, period string) (models.Obligation, error) {
	var row obligationRow
	err := s.db.WithContext(ctx).
		First(&row, "category_key = ? AND provider_key = ? AND period = ?", categoryKey, providerKey, period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Obligation{}, ledger.ErrNotFound
	}
	if err != nil {
		return models.Obligation{}, fmt.Errorf("failed to load obligation by logical key: %w", err)
	}
	return s.hydrate(ctx, row)
}

func (s *Store) hydrate(ctx context.Context, row obligationRow) (models.Obligation, error) {
	var payments []paymentRow
	err := s.db.WithContext(ctx).
		Where("obligation_id = ?", row.ID).
		Order("synced_at, id").
		Find(&payments).Error
	if err != nil {
		return models.Obligation{}, fmt.Errorf("failed to load payments for %s: %w", row.ID, err)
	}
	return fromRow(row, payments), nil
}

func toRow(ob *models.Obligation) obligationRow {
	return obligationRow{
		ID:            ob.ID,
		CategoryKey:   ob.CategoryKey,
		ProviderKey:   models.NormalizeText(ob.Provider),
		Period:        ob.BillingPeriod().String(),
		DisplayName:   ob.DisplayName,
		Provider:      ob.Provider,
		Category:      string(ob.Category),
		NominalAmount: ob.NominalAmount,
		PeriodStart:   ob.PeriodStart,
		DueDate:       ob.DueDate,
		Frequency:     string(ob.Frequency),
		Status:        string(ob.Status),
		TotalPaid:     ob.TotalPaid,
		AutoCreated:   ob.AutoCreated,
		LastSyncedAt:  ob.LastSyncedAt,
		Version:       ob.Version,
	}
}

func toPaymentRow(obligationID string, p models.PaymentRecord) paymentRow {
	return paymentRow{
		ID:                  p.ID,
		ObligationID:        obligationID,
		SourceTransactionID: p.SourceTransactionID,
		Date:                p.Date,
		Amount:              p.Amount,
		Method:              p.Method,
		MerchantText:        p.MerchantText,
		Description:         p.Description,
		SyncedAt:            p.SyncedAt,
	}
}

func fromRow(row obligationRow, payments []paymentRow) models.Obligation {
	ob := models.Obligation{
		ID:            row.ID,
		CategoryKey:   row.CategoryKey,
		DisplayName:   row.DisplayName,
		Provider:      row.Provider,
		Category:      models.Category(row.Category),
		NominalAmount: row.NominalAmount,
		PeriodStart:   row.PeriodStart,
		DueDate:       row.DueDate,
		Frequency:     models.Frequency(row.Frequency),
		Status:        models.ObligationStatus(row.Status),
		TotalPaid:     row.TotalPaid,
		AutoCreated:   row.AutoCreated,
		LastSyncedAt:  row.LastSyncedAt,
		Version:       row.Version,
	}
	for _, p := range payments {
		ob.Payments = append(ob.Payments, models.PaymentRecord{
			ID:                  p.ID,
			Date:                p.Date,
			Amount:              p.Amount,
			Method:              p.Method,
			MerchantText:        p.MerchantText,
			Description:         p.Description,
			SourceTransactionID: p.SourceTransactionID,
			SyncedAt:            p.SyncedAt,
		})
	}
	return ob
}

var _ ledger.Ledger = (*Store)(nil)
