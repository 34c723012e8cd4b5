package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// PostgresRelayRepo はPostgreSQLを使用した転送対応付け・重複抑止リポジトリ。
type PostgresRelayRepo struct {
	db *sql.DB
}

// NewPostgresRelayRepo はPostgresRelayRepoを生成する。
func NewPostgresRelayRepo(db *sql.DB) *PostgresRelayRepo {
	return &PostgresRelayRepo{db: db}
}

// CreateLink は転送メッセージと元送信者の対応付けを記録する。
func (r *PostgresRelayRepo) CreateLink(ctx context.Context, link *model.RelayLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO forwarded_messages (forwarded_message_id, user_id, created_at)
		 VALUES ($1, $2, now())`,
		link.ForwardedMessageID, link.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert relay link: %w", err)
	}
	return nil
}

// FindLinkByForwardedID は転送メッセージIDで対応付けを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresRelayRepo) FindLinkByForwardedID(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error) {
	link := &model.RelayLink{}
	err := r.db.QueryRowContext(ctx,
		`SELECT forwarded_message_id, user_id, created_at
		 FROM forwarded_messages WHERE forwarded_message_id = $1`,
		forwardedMessageID,
	).Scan(&link.ForwardedMessageID, &link.UserID, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find relay link: %w", err)
	}

	return link, nil
}

// MarkProcessed は処理済みマーカーを記録する。既に記録済みの場合は何もしない。
func (r *PostgresRelayRepo) MarkProcessed(ctx context.Context, messageID, userID int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO processed_messages (message_id, user_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

// IsProcessed は指定メッセージが処理済みかどうかを返す。
func (r *PostgresRelayRepo) IsProcessed(ctx context.Context, messageID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1 AND user_id = $2)`,
		messageID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check processed message: %w", err)
	}
	return exists, nil
}

// DeleteProcessedOlderThan は保持期間を超過した処理済みマーカーを削除し、
// 削除件数を返す。
func (r *PostgresRelayRepo) DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed messages: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ RelayRepository = (*PostgresRelayRepo)(nil)
