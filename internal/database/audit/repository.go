// Package audit stores the audit trail of authentication, sync, recommendation
// and preference events.
package audit

import (
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/listenwise/internal/entities"
)

const defaultPageSize = 50

// Filter narrows a List call. Zero fields match everything.
type Filter struct {
	OwnerID uint
	Type    entities.AuditEventType
	Limit   int
	Offset  int
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.OwnerID > 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Type != "" {
		q = q.Where("event_type = ?", f.Type)
	}
	return q
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert stamps event with the current time unless already set.
func (r *Repository) Insert(event *entities.AuditEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return r.db.Create(event).Error
}

// List returns one page of matching events, newest first, plus the total
// number of matches.
func (r *Repository) List(f Filter) ([]entities.AuditEvent, int64, error) {
	var total int64
	if err := f.apply(r.db.Model(&entities.AuditEvent{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := max(f.Offset, 0)

	var events []entities.AuditEvent
	err := f.apply(r.db).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	return events, total, err
}

// DeleteBefore drops every event created before cutoff.
func (r *Repository) DeleteBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&entities.AuditEvent{})
	return res.RowsAffected, res.Error
}
