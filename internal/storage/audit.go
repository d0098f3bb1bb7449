package storage

import (
	"context"
	"database/sql"

	"church-messaging/internal/audit"
)

// AuditRepo appends to audit_events. It never updates or deletes.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	const q = `
INSERT INTO audit_events (
  id, church_id, type, actor_user_id, actor_role, ip_address, message_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.ChurchID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.MessageID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
