package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

const listTopicsSQL = `
SELECT t.id, t.thread_id, t.name, t.normalized_key, t.source_chat_id, t.created_at,
       COALESCE(array_agg(a.chat_id ORDER BY a.created_at) FILTER (WHERE a.chat_id IS NOT NULL), '{}')
FROM topics t
LEFT JOIN topic_aliases a ON a.topic_id = t.id
GROUP BY t.id
ORDER BY t.created_at, t.id`

// ListTopics returns all topics in creation order with their aliases.
func (db *DB) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	rows, err := db.Pool.Query(ctx, listTopicsSQL)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	var topics []domain.Topic

	for rows.Next() {
		var (
			t         domain.Topic
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
		)

		if err := rows.Scan(&id, &t.ThreadID, &t.Name, &t.NormalizedKey, &t.SourceChatID, &createdAt, &t.AliasChatIDs); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}

		t.ID = fromUUID(id)
		t.CreatedAt = fromTimestamptz(createdAt)
		topics = append(topics, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}

	return topics, nil
}

// InsertTopic persists a newly created topic. The normalized key is unique;
// a concurrent insert for the same key fails here rather than silently
// producing a second binding.
func (db *DB) InsertTopic(ctx context.Context, t domain.Topic) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO topics (id, thread_id, name, normalized_key, source_chat_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		toUUID(t.ID), t.ThreadID, t.Name, t.NormalizedKey, t.SourceChatID, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}

	return nil
}

// InsertAlias binds a source chat id to a topic. An existing binding for
// the chat id is moved to the given topic, which keeps alias merging
// idempotent.
func (db *DB) InsertAlias(ctx context.Context, topicID string, chatID int64) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO topic_aliases (topic_id, chat_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chat_id) DO UPDATE SET topic_id = EXCLUDED.topic_id`,
		toUUID(topicID), chatID)
	if err != nil {
		return fmt.Errorf("insert topic alias: %w", err)
	}

	return nil
}

// DeleteTopic removes a topic row and its aliases. Used only when
// reconciliation merges two topics created for the same normalized key.
func (db *DB) DeleteTopic(ctx context.Context, topicID string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete topic: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM topic_aliases WHERE topic_id = $1`, toUUID(topicID)); err != nil {
		return fmt.Errorf("delete topic aliases: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM topics WHERE id = $1`, toUUID(topicID)); err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete topic: %w", err)
	}

	return nil
}
