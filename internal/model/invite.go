// Package model はドメインモデルを定義する。
package model

import "time"

// InviteTTL は発行済み招待リンクの有効期間。
// 期限切れスイープがこの期間を超過したリンクを失効させる。
const InviteTTL = time.Hour

// Invite は1人のユーザーに発行された単一使用の招待リンクを表す。
// 承認時にチャンネルごとに1件作成され、期限切れスイープまたは
// 追放スイープによる失効時に削除される。
type Invite struct {
	ID         string // UUID
	InviteLink string
	ChannelID  int64
	UserID     int64
	CreatedAt  time.Time
}

// Expired は招待リンクが有効期間ttlを超過しているかどうかを判定する。
func (i *Invite) Expired(now time.Time, ttl time.Duration) bool {
	return !i.CreatedAt.After(now.Add(-ttl))
}
