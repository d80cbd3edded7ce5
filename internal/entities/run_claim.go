package entities

import (
	"time"
)

type RunKind string

const (
	RunKindSync      RunKind = "sync"
	RunKindRecommend RunKind = "recommend"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunClaim is the per-owner run token row. A run owns the row while Status is
// running and Token matches; other triggers for the same owner and kind are rejected.
type RunClaim struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	OwnerID              uint       `gorm:"uniqueIndex:idx_run_claim_owner_kind;not null" json:"owner_id"`
	Kind                 RunKind    `gorm:"uniqueIndex:idx_run_claim_owner_kind;size:20;not null" json:"kind"`
	Status               RunStatus  `gorm:"size:20" json:"status"`
	Token                string     `gorm:"size:36" json:"-"`
	Error                string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	LastSuccessStartedAt *time.Time `json:"last_success_started_at,omitempty"`
}

func (RunClaim) TableName() string {
	return "run_claims"
}
