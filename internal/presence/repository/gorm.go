package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"online-status/internal/presence/domain"
)

// onlineStatusRow is the gorm model for user_online_status.
type onlineStatusRow struct {
	UserID       int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	LastActivity time.Time `gorm:"column:last_activity;not null;index"`
	IPAddress    string    `gorm:"column:ip_address;size:45;not null;default:''"`
	UserAgent    string    `gorm:"column:user_agent;not null;default:''"`
	PageURL      string    `gorm:"column:page_url;size:255;not null;default:''"`
}

func (onlineStatusRow) TableName() string { return "user_online_status" }

// GormRepository stores presence records through gorm. Used with the SQLite driver for single-node deployments.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a repository backed by db. Call AutoMigrate once before use on a fresh database.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the user_online_status table.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&onlineStatusRow{})
}

func (r *GormRepository) Upsert(ctx context.Context, rec *domain.Record) error {
	row := recordToRow(rec)
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_activity", "ip_address", "user_agent", "page_url"}),
	}).Create(&row).Error
}

func (r *GormRepository) Get(ctx context.Context, userID int64) (*domain.Record, error) {
	var row onlineStatusRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rowToRecord(&row), nil
}

func (r *GormRepository) Delete(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&onlineStatusRow{}).Error
}

func (r *GormRepository) ListIdle(ctx context.Context, before time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&onlineStatusRow{}).
		Where("last_activity < ?", before.UTC()).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// DeleteWhere runs the select and delete in one short transaction so the returned ids match what was removed.
func (r *GormRepository) DeleteWhere(ctx context.Context, before time.Time, userIDs []int64) ([]int64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var deleted []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&onlineStatusRow{}).
			Where("user_id IN ? AND last_activity < ?", userIDs, before.UTC()).
			Order("user_id").
			Pluck("user_id", &deleted).Error; err != nil {
			return err
		}
		if len(deleted) == 0 {
			return nil
		}
		return tx.Where("user_id IN ?", deleted).Delete(&onlineStatusRow{}).Error
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (r *GormRepository) ListActiveSince(ctx context.Context, since time.Time) ([]*domain.Record, error) {
	var rows []onlineStatusRow
	err := r.db.WithContext(ctx).
		Where("last_activity >= ?", since.UTC()).
		Order("last_activity DESC").Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, len(rows))
	for i := range rows {
		out[i] = rowToRecord(&rows[i])
	}
	return out, nil
}

func (r *GormRepository) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&onlineStatusRow{}).
		Where("last_activity >= ?", since.UTC()).
		Count(&n).Error
	return n, err
}

func recordToRow(rec *domain.Record) onlineStatusRow {
	return onlineStatusRow{
		UserID:       rec.UserID,
		LastActivity: rec.LastActivity.UTC(),
		IPAddress:    rec.IPAddress,
		UserAgent:    rec.UserAgent,
		PageURL:      rec.PageURL,
	}
}

func rowToRecord(row *onlineStatusRow) *domain.Record {
	return &domain.Record{
		UserID:       row.UserID,
		LastActivity: row.LastActivity.UTC(),
		IPAddress:    row.IPAddress,
		UserAgent:    row.UserAgent,
		PageURL:      row.PageURL,
	}
}
