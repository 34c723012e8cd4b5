// Package model はドメインモデルを定義する。
package model

import "time"

// Channel は招待リンク発行と追放スイープの対象となるチャンネルを表す。
// 管理者の /addchannel コマンドで登録され、/removechannel で削除される。
type Channel struct {
	ChannelID int64
	Title     string
	CreatedAt time.Time
}
