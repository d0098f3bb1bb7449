package storage

import (
	"context"
	"database/sql"
	"errors"

	"church-messaging/internal/identity"
)

// DirectoryRepo implements identity.Directory, identity.Versioner and
// identity.Roster.
type DirectoryRepo struct {
	db *sql.DB
}

func NewDirectoryRepo(db *sql.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

func (r *DirectoryRepo) ListChurchIDs(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM churches ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *DirectoryRepo) FindMemberByPhone(ctx context.Context, churchID, localPhone string) (string, bool, error) {
	const q = `
SELECT id
FROM users
WHERE church_id = $1 AND phone = $2
ORDER BY created_at ASC, id ASC
LIMIT 1
`
	return r.findID(ctx, q, churchID, localPhone)
}

func (r *DirectoryRepo) FindVisitorByPhone(ctx context.Context, churchID, localPhone string) (string, bool, error) {
	const q = `
SELECT id
FROM visitors
WHERE church_id = $1 AND phone = $2
ORDER BY created_at ASC, id ASC
LIMIT 1
`
	return r.findID(ctx, q, churchID, localPhone)
}

func (r *DirectoryRepo) findID(ctx context.Context, q, churchID, localPhone string) (string, bool, error) {
	if localPhone == "" {
		return "", false, nil
	}
	var id string
	if err := r.db.QueryRowContext(ctx, q, churchID, localPhone).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

// DirectoryVersion reads the counter maintained by the directory triggers
// (migrations/0002_directory_version.sql).
func (r *DirectoryRepo) DirectoryVersion(ctx context.Context) (int64, error) {
	var v int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM directory_version WHERE id`).Scan(&v)
	return v, err
}

func (r *DirectoryRepo) HasMember(ctx context.Context, churchID, memberID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE church_id = $1 AND id = $2)`, churchID, memberID)
}

func (r *DirectoryRepo) HasVisitor(ctx context.Context, churchID, visitorID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM visitors WHERE church_id = $1 AND id = $2)`, churchID, visitorID)
}

func (r *DirectoryRepo) exists(ctx context.Context, q, churchID, id string) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, q, churchID, id).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *DirectoryRepo) LatestMessageTo(ctx context.Context, normalizedPhone string) (identity.Attribution, bool, error) {
	const q = `
SELECT church_id, member_id, visitor_id
FROM message_docs
WHERE collection = 'messages' AND to_number = $1
ORDER BY ts DESC
LIMIT 1
`
	var churchID, memberID, visitorID sql.NullString
	if err := r.db.QueryRowContext(ctx, q, normalizedPhone).Scan(&churchID, &memberID, &visitorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Attribution{}, false, nil
		}
		return identity.Attribution{}, false, err
	}
	return identity.Attribution{
		ChurchID:  churchID.String,
		MemberID:  memberID.String,
		VisitorID: visitorID.String,
	}, true, nil
}
