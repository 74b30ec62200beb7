package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

// AppendActivity writes one immutable record to the forwarding log.
// The write must succeed before the event is acknowledged as handled.
func (db *DB) AppendActivity(ctx context.Context, rec domain.ActivityRecord) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO activity_log (id, ts, chat_id, source_name, media_kind, thread_id, outcome, file_size, duration_secs)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		toUUID(rec.ID), rec.Timestamp, rec.SourceChatID, rec.SourceName,
		string(rec.Kind), rec.ThreadID, string(rec.Outcome), rec.FileSize, rec.Duration)
	if err != nil {
		return fmt.Errorf("append activity record: %w", err)
	}

	return nil
}

// ListActivity returns the most recent records, newest first. Limit is
// clamped to the log cap.
func (db *DB) ListActivity(ctx context.Context, limit int) ([]domain.ActivityRecord, error) {
	if limit <= 0 || limit > activityLogCap {
		limit = activityLogCap
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id, ts, chat_id, source_name, media_kind, thread_id, outcome, file_size, duration_secs
		FROM activity_log
		ORDER BY ts DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

// ListActivitySince returns records at or after the given time in write
// order, capped at the log cap.
func (db *DB) ListActivitySince(ctx context.Context, since time.Time) ([]domain.ActivityRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, ts, chat_id, source_name, media_kind, thread_id, outcome, file_size, duration_secs
		FROM activity_log
		WHERE ts >= $1
		ORDER BY ts, id
		LIMIT $2`, since, activityLogCap)
	if err != nil {
		return nil, fmt.Errorf("list activity since: %w", err)
	}
	defer rows.Close()

	return scanActivity(rows)
}

// PruneActivity trims the log to its cap, dropping the oldest records.
// Returns the number of rows removed.
func (db *DB) PruneActivity(ctx context.Context) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM activity_log
		WHERE id NOT IN (
			SELECT id FROM activity_log ORDER BY ts DESC, id DESC LIMIT $1
		)`, activityLogCap)
	if err != nil {
		return 0, fmt.Errorf("prune activity log: %w", err)
	}

	return tag.RowsAffected(), nil
}

type activityRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanActivity(rows activityRows) ([]domain.ActivityRecord, error) {
	var records []domain.ActivityRecord

	for rows.Next() {
		var (
			rec     domain.ActivityRecord
			id      pgtype.UUID
			ts      pgtype.Timestamptz
			kind    string
			outcome string
		)

		if err := rows.Scan(&id, &ts, &rec.SourceChatID, &rec.SourceName, &kind, &rec.ThreadID, &outcome, &rec.FileSize, &rec.Duration); err != nil {
			return nil, fmt.Errorf("scan activity record: %w", err)
		}

		rec.ID = fromUUID(id)
		rec.Timestamp = fromTimestamptz(ts)
		rec.Kind = domain.MediaKind(kind)
		rec.Outcome = domain.Outcome(outcome)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity records: %w", err)
	}

	return records, nil
}
