package journal

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/storage"
)

type runRow struct {
	ID         string `gorm:"primaryKey"`
	RequestID  string
	Operation  string
	Source     string
	Status     string
	ErrorKind  string
	Labels     datatypes.JSON
	DurationMs int64
	CreatedAt  time.Time
}

func (runRow) TableName() string { return "run_records" }

// SQLStore persists records through gorm. The schema is owned by the
// storage migrations.
type SQLStore struct {
	db       *gorm.DB
	capacity int
	owned    bool
}

// NewSQLStore wraps an open database. When capacity is positive, older rows
// are pruned on append.
func NewSQLStore(db *gorm.DB, capacity int) *SQLStore {
	return &SQLStore{db: db, capacity: capacity}
}

func (s *SQLStore) Append(ctx context.Context, rec Record) error {
	const op = "journal.sqlite.append"
	row := runRow{
		ID:         rec.ID,
		RequestID:  rec.RequestID,
		Operation:  rec.Operation,
		Source:     rec.Source,
		Status:     rec.Status,
		ErrorKind:  rec.ErrorKind,
		DurationMs: rec.DurationMs,
		CreatedAt:  rec.CreatedAt,
	}
	if len(rec.Labels) > 0 {
		labels, err := sonic.Marshal(rec.Labels)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorage, op, "encode labels", err)
		}
		row.Labels = datatypes.JSON(labels)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, op, "insert record", err)
		}
		if s.capacity <= 0 {
			return nil
		}
		keep := tx.Session(&gorm.Session{NewDB: true}).Model(&runRow{}).Select("id").Order("created_at DESC").Limit(s.capacity)
		if err := tx.Where("id NOT IN (?)", keep).Delete(&runRow{}).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, op, "prune records", err)
		}
		return nil
	})
}

func (s *SQLStore) List(ctx context.Context, limit int) ([]Record, error) {
	const op = "journal.sqlite.list"
	var rows []runRow
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(clampLimit(limit, s.capacity)).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, op, "query records", err)
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec := Record{
			ID:         row.ID,
			RequestID:  row.RequestID,
			Operation:  row.Operation,
			Source:     row.Source,
			Status:     row.Status,
			ErrorKind:  row.ErrorKind,
			DurationMs: row.DurationMs,
			CreatedAt:  row.CreatedAt,
		}
		if len(row.Labels) > 0 {
			if err := sonic.Unmarshal(row.Labels, &rec.Labels); err != nil {
				return nil, apperrors.Wrap(apperrors.KindStorage, op, "decode labels", err)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the database only when the store opened it.
func (s *SQLStore) Close() error {
	if !s.owned {
		return nil
	}
	return storage.Close(s.db)
}
