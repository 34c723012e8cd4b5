package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// PostgresInviteRepo はPostgreSQLを使用した招待リンクリポジトリ。
type PostgresInviteRepo struct {
	db *sql.DB
}

// NewPostgresInviteRepo はPostgresInviteRepoを生成する。
func NewPostgresInviteRepo(db *sql.DB) *PostgresInviteRepo {
	return &PostgresInviteRepo{db: db}
}

// Create は招待リンクを記録する。
func (r *PostgresInviteRepo) Create(ctx context.Context, invite *model.Invite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invites (id, invite_link, channel_id, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		invite.ID, invite.InviteLink, invite.ChannelID, invite.UserID, invite.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert invite: %w", err)
	}
	return nil
}

// ListExpired はcreated_atがcutoff以前の招待リンク一覧を返す。
func (r *PostgresInviteRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]*model.Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invite_link, channel_id, user_id, created_at
		 FROM invites WHERE created_at <= $1`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired invites: %w", err)
	}
	defer rows.Close()

	return scanInvites(rows)
}

// ListByChannelAndUser は(チャンネル, ユーザー)に紐づく招待リンク一覧を返す。
func (r *PostgresInviteRepo) ListByChannelAndUser(ctx context.Context, channelID, userID int64) ([]*model.Invite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, invite_link, channel_id, user_id, created_at
		 FROM invites WHERE channel_id = $1 AND user_id = $2`,
		channelID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites by channel and user: %w", err)
	}
	defer rows.Close()

	return scanInvites(rows)
}

// DeleteByID は指定IDの招待リンクを削除する。対象が存在しない場合も成功扱い。
func (r *PostgresInviteRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM invites WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	return nil
}

// scanInvites はクエリ結果をInviteのスライスに変換する。
func scanInvites(rows *sql.Rows) ([]*model.Invite, error) {
	var invites []*model.Invite
	for rows.Next() {
		invite := &model.Invite{}
		if err := rows.Scan(&invite.ID, &invite.InviteLink, &invite.ChannelID,
			&invite.UserID, &invite.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invite row: %w", err)
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invite rows: %w", err)
	}
	return invites, nil
}

// compile-time interface check
var _ InviteRepository = (*PostgresInviteRepo)(nil)
