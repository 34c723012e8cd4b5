package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// PostgresChannelRepo はPostgreSQLを使用したチャンネルリポジトリ。
type PostgresChannelRepo struct {
	db *sql.DB
}

// NewPostgresChannelRepo はPostgresChannelRepoを生成する。
func NewPostgresChannelRepo(db *sql.DB) *PostgresChannelRepo {
	return &PostgresChannelRepo{db: db}
}

// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
func (r *PostgresChannelRepo) FindByID(ctx context.Context, channelID int64) (*model.Channel, error) {
	channel := &model.Channel{}
	err := r.db.QueryRowContext(ctx,
		`SELECT channel_id, title, created_at FROM channels WHERE channel_id = $1`,
		channelID,
	).Scan(&channel.ChannelID, &channel.Title, &channel.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find channel by ID: %w", err)
	}

	return channel, nil
}

// Create はチャンネルを作成する。
func (r *PostgresChannelRepo) Create(ctx context.Context, channel *model.Channel) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO channels (channel_id, title, created_at) VALUES ($1, $2, now())`,
		channel.ChannelID, channel.Title,
	)
	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}
	return nil
}

// ListAll は登録済みチャンネル一覧を返す。
func (r *PostgresChannelRepo) ListAll(ctx context.Context) ([]*model.Channel, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT channel_id, title, created_at FROM channels ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []*model.Channel
	for rows.Next() {
		channel := &model.Channel{}
		if err := rows.Scan(&channel.ChannelID, &channel.Title, &channel.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate channel rows: %w", err)
	}

	return channels, nil
}

// DeleteByID は指定IDのチャンネルを削除する。実際に削除された場合はtrueを返す。
func (r *PostgresChannelRepo) DeleteByID(ctx context.Context, channelID int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM channels WHERE channel_id = $1`,
		channelID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete channel: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ ChannelRepository = (*PostgresChannelRepo)(nil)
