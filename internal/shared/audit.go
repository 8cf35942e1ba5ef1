package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// AuditLog is one ledger event written to audit_logs.
type AuditLog struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// Validate checks the fields every audit row must carry.
func (l AuditLog) Validate() error {
	if l.CompanyID == 0 || l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return fmt.Errorf("%w: audit log requires company, action, entity and entity id", ErrValidation)
	}
	return nil
}

// AuditLogger appends AuditLog rows.
type AuditLogger struct {
	db Execer
}

// NewAuditLogger returns an AuditLogger writing through db.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record persists the entry. Anonymous actors are stored as NULL and a zero
// timestamp defers to the database clock.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	meta := log.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("audit meta: %w", err)
	}
	var actor, at any
	if log.ActorID != 0 {
		actor = log.ActorID
	}
	if !log.At.IsZero() {
		at = log.At
	}
	_, err = l.db.Exec(ctx, `INSERT INTO audit_logs (company_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`, log.CompanyID, actor, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}
