package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// PostgresMemberRepo はPostgreSQLを使用したメンバーリポジトリ。
type PostgresMemberRepo struct {
	db *sql.DB
}

// NewPostgresMemberRepo はPostgresMemberRepoを生成する。
func NewPostgresMemberRepo(db *sql.DB) *PostgresMemberRepo {
	return &PostgresMemberRepo{db: db}
}

// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
func (r *PostgresMemberRepo) FindByID(ctx context.Context, userID int64) (*model.Member, error) {
	member := &model.Member{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, removal_date, warn_date, warned, created_at, updated_at
		 FROM members WHERE user_id = $1`,
		userID,
	).Scan(&member.UserID, &member.DisplayName, &member.RemovalDate, &member.WarnDate,
		&member.Warned, &member.CreatedAt, &member.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member by ID: %w", err)
	}

	return member, nil
}

// Upsert はメンバーをUPSERTする。
// 既存レコードがある場合はremoval_date/warn_dateを上書きし、
// warnedフラグをリセットする。
func (r *PostgresMemberRepo) Upsert(ctx context.Context, member *model.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO members (user_id, display_name, removal_date, warn_date, warned, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, FALSE, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   removal_date = EXCLUDED.removal_date,
		   warn_date = EXCLUDED.warn_date,
		   warned = FALSE,
		   updated_at = now()`,
		member.UserID, member.DisplayName, member.RemovalDate, member.WarnDate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member: %w", err)
	}
	return nil
}

// MarkWarned は警告送信済みフラグを設定する。
func (r *PostgresMemberRepo) MarkWarned(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE members SET warned = TRUE, updated_at = now() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark member warned: %w", err)
	}
	return nil
}

// ListDueForWarning はwarn_dateを経過し未警告のメンバー一覧を返す。
func (r *PostgresMemberRepo) ListDueForWarning(ctx context.Context, now time.Time) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, removal_date, warn_date, warned, created_at, updated_at
		 FROM members WHERE warn_date <= $1 AND NOT warned`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members due for warning: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// ListDueForRemoval はremoval_dateを経過したメンバー一覧を返す。
func (r *PostgresMemberRepo) ListDueForRemoval(ctx context.Context, now time.Time) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, removal_date, warn_date, warned, created_at, updated_at
		 FROM members WHERE removal_date <= $1`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members due for removal: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// ListAll は全メンバー一覧を返す。
func (r *PostgresMemberRepo) ListAll(ctx context.Context) ([]*model.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, display_name, removal_date, warn_date, warned, created_at, updated_at
		 FROM members`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	return scanMembers(rows)
}

// DeleteByID は指定IDのメンバーを削除する。対象が存在しない場合も成功扱い。
func (r *PostgresMemberRepo) DeleteByID(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM members WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

// scanMembers はクエリ結果をMemberのスライスに変換する。
func scanMembers(rows *sql.Rows) ([]*model.Member, error) {
	var members []*model.Member
	for rows.Next() {
		member := &model.Member{}
		if err := rows.Scan(&member.UserID, &member.DisplayName, &member.RemovalDate,
			&member.WarnDate, &member.Warned, &member.CreatedAt, &member.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}
	return members, nil
}

// compile-time interface check
var _ MemberRepository = (*PostgresMemberRepo)(nil)
