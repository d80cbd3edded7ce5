package audit

import (
	"fmt"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/database/audit"
	"github.com/mrlokans/listenwise/internal/entities"
)

// Service provides high-level audit logging functionality.
type Service struct {
	repo *audit.Repository
	log  logger.Logger
}

// NewService creates a new audit service.
func NewService(repo *audit.Repository) *Service {
	return &Service{repo: repo, log: logger.New()}
}

// Log records a generic audit event.
func (s *Service) Log(event *entities.AuditEvent) error {
	return s.repo.Insert(event)
}

// LogAsync records an audit event in the background (non-blocking).
func (s *Service) LogAsync(event *entities.AuditEvent) {
	go func() {
		if err := s.repo.Insert(event); err != nil {
			s.log.Err(err).Error("failed to log audit event", logger.Data{"action": event.Action})
		}
	}()
}

// LogAuth records an authentication step (login, otp_submit, refresh).
func (s *Service) LogAuth(ownerID uint, action, marketplace string, err error) {
	event := newEvent(ownerID, entities.AuditEventAuth, action, "Authentication against "+marketplace+" marketplace", err)
	event.Metadata = encodeMetadata(map[string]any{"marketplace": marketplace})
	s.LogAsync(event)
}

// LogSync records a finished library sync.
func (s *Service) LogSync(ownerID uint, fetched, created, updated, skipped, failed int, err error) {
	description := fmt.Sprintf("Fetched %d entries: %d new, %d updated, %d unchanged, %d failed", fetched, created, updated, skipped, failed)
	event := newEvent(ownerID, entities.AuditEventSync, "library_sync", description, err)
	event.Metadata = encodeMetadata(map[string]any{
		"fetched": fetched,
		"created": created,
		"updated": updated,
		"skipped": skipped,
		"errors":  failed,
	})
	s.LogAsync(event)
}

// LogRecommend records a finished recommendation run.
func (s *Service) LogRecommend(ownerID uint, generated, failedSources int, err error) {
	description := fmt.Sprintf("Generated %d recommendations (%d sources failed)", generated, failedSources)
	event := newEvent(ownerID, entities.AuditEventRecommend, "generate_recommendations", description, err)
	event.Metadata = encodeMetadata(map[string]any{"generated": generated, "failed_sources": failedSources})
	s.LogAsync(event)
}

// LogPreferences records a preferences change.
func (s *Service) LogPreferences(ownerID uint, description string) {
	s.LogAsync(newEvent(ownerID, entities.AuditEventPreferences, "preferences_update", description, nil))
}

// Events returns one page of the owner's audit trail; ownerID 0 means all
// owners and an empty eventType all types.
func (s *Service) Events(ownerID uint, eventType entities.AuditEventType, limit, offset int) ([]entities.AuditEvent, int64, error) {
	return s.repo.List(audit.Filter{OwnerID: ownerID, Type: eventType, Limit: limit, Offset: offset})
}

// DeleteOldEvents drops events older than retention.
func (s *Service) DeleteOldEvents(retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(time.Now().Add(-retention))
}

func newEvent(ownerID uint, eventType entities.AuditEventType, action, description string, err error) *entities.AuditEvent {
	event := &entities.AuditEvent{
		OwnerID:     ownerID,
		EventType:   eventType,
		Action:      action,
		Description: truncate(description, 500),
		Status:      entities.AuditStatusSuccess,
	}
	if err != nil {
		event.Status = entities.AuditStatusFailed
		event.ErrorMsg = truncate(err.Error(), 500)
	}
	return event
}

func encodeMetadata(metadata map[string]any) string {
	b, err := json.Marshal(metadata)
	if err != nil {
		return ""
	}
	return string(b)
}

// truncate shortens a string to max length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
