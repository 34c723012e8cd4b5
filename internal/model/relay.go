// Package model はドメインモデルを定義する。
package model

import "time"

// ProcessedRetention は処理済みメッセージマーカーの保持期間。
// この期間を超過したマーカーはクリーンアップジョブで削除され、
// 同一メッセージIDの再処理が再び可能になる。
const ProcessedRetention = 7 * 24 * time.Hour

// RelayLink は管理者へ転送したメッセージと元の送信者の対応付けを表す。
// 管理者が転送メッセージに返信した際の宛先解決に使用する。
type RelayLink struct {
	ForwardedMessageID int64
	UserID             int64
	CreatedAt          time.Time
}

// ProcessedMessage は転送済みメッセージの重複抑止マーカーを表す。
// 元メッセージのIDをキーとし、プラットフォームによる同一更新の
// 再配信を検出する。
type ProcessedMessage struct {
	MessageID int64
	UserID    int64
	CreatedAt time.Time
}
