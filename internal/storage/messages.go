package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"church-messaging/internal/identity"
	"church-messaging/internal/messaging"
	"church-messaging/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes migrations/0001_init.sql has been applied.
// In particular the partial unique index message_docs_global_sid enforces one
// global document per twilio sid.

const globalSIDIndex = "message_docs_global_sid"

const messageColumns = `collection, id, from_number, to_number, body, message, direction, status,
sent_at, ts, church_id, member_id, visitor_id, twilio_sid, is_read,
sender_id, member_name, visitor_name, client_message_id`

// MessageRepo implements messaging.MessageStore on Postgres.
type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func messageArgs(coll messaging.Collection, m messaging.Message) []any {
	return []any{
		string(coll),
		m.ID,
		m.From,
		m.To,
		m.Body,
		m.Text,
		string(m.Direction),
		m.Status,
		m.SentAt,
		m.Timestamp,
		nullable(m.ChurchID),
		nullable(m.MemberID),
		nullable(m.VisitorID),
		nullable(m.TwilioSID),
		m.IsRead,
		nullable(m.SenderID),
		nullable(m.MemberName),
		nullable(m.VisitorName),
		nullable(m.ClientMessageID),
	}
}

const insertMessageSQL = `
INSERT INTO message_docs (` + messageColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
`

func insertMessage(ctx context.Context, ex execer, coll messaging.Collection, m messaging.Message, suffix string) (sql.Result, error) {
	return ex.ExecContext(ctx, insertMessageSQL+suffix, messageArgs(coll, m)...)
}

func (r *MessageRepo) Insert(ctx context.Context, coll messaging.Collection, m messaging.Message) error {
	if m.ID == "" {
		return fmt.Errorf("%w: message id required", messaging.ErrInvalidRequest)
	}
	if _, err := insertMessage(ctx, r.db, coll, m, ""); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *MessageRepo) Upsert(ctx context.Context, coll messaging.Collection, m messaging.Message) error {
	if m.ID == "" {
		return fmt.Errorf("%w: message id required", messaging.ErrInvalidRequest)
	}
	const onConflict = `
ON CONFLICT (collection, id)
DO UPDATE SET from_number = EXCLUDED.from_number,
              to_number = EXCLUDED.to_number,
              body = EXCLUDED.body,
              message = EXCLUDED.message,
              direction = EXCLUDED.direction,
              status = EXCLUDED.status,
              sent_at = EXCLUDED.sent_at,
              ts = EXCLUDED.ts,
              church_id = EXCLUDED.church_id,
              member_id = EXCLUDED.member_id,
              visitor_id = EXCLUDED.visitor_id,
              twilio_sid = EXCLUDED.twilio_sid,
              is_read = EXCLUDED.is_read,
              sender_id = EXCLUDED.sender_id,
              member_name = EXCLUDED.member_name,
              visitor_name = EXCLUDED.visitor_name,
              client_message_id = EXCLUDED.client_message_id
`
	if _, err := insertMessage(ctx, r.db, coll, m, onConflict); err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *MessageRepo) ExistingSIDs(ctx context.Context, sids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(sids))
	if len(sids) == 0 {
		return out, nil
	}
	if len(sids) > messaging.MaxSIDLookup {
		return nil, fmt.Errorf("%w: at most %d sids per lookup", messaging.ErrInvalidRequest, messaging.MaxSIDLookup)
	}

	placeholders := make([]string, len(sids))
	args := make([]any, len(sids))
	for i, sid := range sids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = sid
	}
	q := `
SELECT twilio_sid
FROM message_docs
WHERE collection = 'messages' AND twilio_sid IN (` + strings.Join(placeholders, ",") + `)
`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out[sid] = true
	}
	return out, rows.Err()
}

// CommitBatch inserts all items in one transaction. A global row that hits
// an existing id or sid is skipped together with its copies.
func (r *MessageRepo) CommitBatch(ctx context.Context, items []messaging.BatchItem) ([]messaging.Message, error) {
	var stored []messaging.Message
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		stored = stored[:0]
		for _, it := range items {
			if err := it.Message.Validate(); err != nil {
				return err
			}
			res, err := insertMessage(ctx, tx, messaging.GlobalMessages, it.Message, "ON CONFLICT DO NOTHING")
			if err != nil {
				return mapWriteErr(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			for _, coll := range it.Copies {
				if _, err := insertMessage(ctx, tx, coll, it.Message, "ON CONFLICT (collection, id) DO NOTHING"); err != nil {
					return mapWriteErr(err)
				}
			}
			stored = append(stored, it.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

const identityFilter = `collection = $1 AND church_id = $2 AND NOT is_read
  AND ($3 = '' OR member_id = $3)
  AND ($4 = '' OR visitor_id = $4)`

func (r *MessageRepo) CountUnread(ctx context.Context, coll messaging.Collection, a identity.Attribution) (int, error) {
	q := `SELECT COUNT(*) FROM message_docs WHERE ` + identityFilter
	var n int
	if err := r.db.QueryRowContext(ctx, q, string(coll), a.ChurchID, a.MemberID, a.VisitorID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, coll messaging.Collection, a identity.Attribution) (int, error) {
	q := `UPDATE message_docs SET is_read = true WHERE ` + identityFilter
	res, err := r.db.ExecContext(ctx, q, string(coll), a.ChurchID, a.MemberID, a.VisitorID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *MessageRepo) ListMessages(ctx context.Context, coll messaging.Collection, from, to time.Time) ([]messaging.Message, error) {
	q := `
SELECT ` + messageColumns + `
FROM message_docs
WHERE collection = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, string(coll), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]messaging.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (messaging.Message, error) {
	var (
		m                                      messaging.Message
		coll, direction                        string
		churchID, memberID, visitorID, sid     sql.NullString
		senderID, memberName, visitorName, cid sql.NullString
	)
	if err := s.Scan(
		&coll,
		&m.ID,
		&m.From,
		&m.To,
		&m.Body,
		&m.Text,
		&direction,
		&m.Status,
		&m.SentAt,
		&m.Timestamp,
		&churchID,
		&memberID,
		&visitorID,
		&sid,
		&m.IsRead,
		&senderID,
		&memberName,
		&visitorName,
		&cid,
	); err != nil {
		return messaging.Message{}, err
	}
	m.Direction = messaging.Direction(direction)
	m.ChurchID = churchID.String
	m.MemberID = memberID.String
	m.VisitorID = visitorID.String
	m.TwilioSID = sid.String
	m.SenderID = senderID.String
	m.MemberName = memberName.String
	m.VisitorName = visitorName.String
	m.ClientMessageID = cid.String
	return m, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == globalSIDIndex {
		return fmt.Errorf("%w: %s", messaging.ErrDuplicateSID, pgErr.Detail)
	}
	return err
}
