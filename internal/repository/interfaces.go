// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// MemberRepository は購読メンバーデータの永続化インターフェース。
type MemberRepository interface {
	// FindByID は指定IDのメンバーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID int64) (*model.Member, error)

	// Upsert はメンバーをUPSERTする。
	// 既存レコードがある場合はremoval_date/warn_dateを上書きし、
	// warnedフラグをリセットする（last write wins）。
	Upsert(ctx context.Context, member *model.Member) error

	// MarkWarned は警告送信済みフラグを設定する。
	MarkWarned(ctx context.Context, userID int64) error

	// ListDueForWarning はwarn_dateを経過し未警告のメンバー一覧を返す。
	ListDueForWarning(ctx context.Context, now time.Time) ([]*model.Member, error)

	// ListDueForRemoval はremoval_dateを経過したメンバー一覧を返す。
	ListDueForRemoval(ctx context.Context, now time.Time) ([]*model.Member, error)

	// ListAll は全メンバー一覧を返す。ブロードキャストの宛先に使用する。
	ListAll(ctx context.Context) ([]*model.Member, error)

	// DeleteByID は指定IDのメンバーを削除する。
	// 冪等: 対象が存在しない場合もエラーにならない。
	DeleteByID(ctx context.Context, userID int64) error
}

// ChannelRepository はチャンネルデータの永続化インターフェース。
type ChannelRepository interface {
	// FindByID は指定IDのチャンネルを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, channelID int64) (*model.Channel, error)

	// Create はチャンネルを作成する。
	Create(ctx context.Context, channel *model.Channel) error

	// ListAll は登録済みチャンネル一覧を返す。
	ListAll(ctx context.Context) ([]*model.Channel, error)

	// DeleteByID は指定IDのチャンネルを削除する。
	// 実際に削除された場合はtrueを返す。
	DeleteByID(ctx context.Context, channelID int64) (bool, error)
}

// InviteRepository は招待リンクデータの永続化インターフェース。
type InviteRepository interface {
	// Create は招待リンクを記録する。
	Create(ctx context.Context, invite *model.Invite) error

	// ListExpired はcreated_atがcutoff以前の招待リンク一覧を返す。
	ListExpired(ctx context.Context, cutoff time.Time) ([]*model.Invite, error)

	// ListByChannelAndUser は(チャンネル, ユーザー)に紐づく招待リンク一覧を返す。
	ListByChannelAndUser(ctx context.Context, channelID, userID int64) ([]*model.Invite, error)

	// DeleteByID は指定IDの招待リンクを削除する。
	// 冪等: 期限切れスイープと追放スイープが同一行を競合して削除しても
	// エラーにならない。
	DeleteByID(ctx context.Context, id string) error
}

// RelayRepository は転送メッセージの対応付けと重複抑止マーカーの
// 永続化インターフェース。
type RelayRepository interface {
	// CreateLink は転送メッセージと元送信者の対応付けを記録する。
	CreateLink(ctx context.Context, link *model.RelayLink) error

	// FindLinkByForwardedID は転送メッセージIDで対応付けを検索する。
	// 見つからない場合はnilを返す。
	FindLinkByForwardedID(ctx context.Context, forwardedMessageID int64) (*model.RelayLink, error)

	// MarkProcessed は処理済みマーカーを記録する。
	// 冪等: 既に記録済みの場合は何もしない。
	MarkProcessed(ctx context.Context, messageID, userID int64, now time.Time) error

	// IsProcessed は指定メッセージが処理済みかどうかを返す。
	IsProcessed(ctx context.Context, messageID, userID int64) (bool, error)

	// DeleteProcessedOlderThan は保持期間を超過した処理済みマーカーを削除し、
	// 削除件数を返す。
	DeleteProcessedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
