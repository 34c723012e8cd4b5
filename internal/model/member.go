// Package model はドメインモデルを定義する。
package model

import "time"

// Member は購読管理対象のユーザーを表す。
// 削除日が設定されたユーザーのみレコードが存在し、
// 削除スイープの完了時にレコードごと削除される。
type Member struct {
	UserID      int64
	DisplayName string
	RemovalDate time.Time // この日時を過ぎるとチャンネルから追放される
	WarnDate    time.Time // RemovalDateの24時間前
	Warned      bool      // 警告通知を送信済みかどうか
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DueForWarning は警告送信の対象かどうかを判定する。
func (m *Member) DueForWarning(now time.Time) bool {
	return !m.Warned && !m.WarnDate.After(now)
}

// DueForRemoval は追放処理の対象かどうかを判定する。
func (m *Member) DueForRemoval(now time.Time) bool {
	return !m.RemovalDate.After(now)
}
