// Package model はドメインモデルを定義する。
package model

import "fmt"

// BotError はユーザー（管理者）へ返信可能な業務エラーを表す。
// ディスパッチャはReplyをそのまま返信文として使用する。
type BotError struct {
	Code  string // エラーコード
	Reply string // 返信に使用するメッセージ
}

// Error はerrorインターフェースを実装する。
func (e *BotError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Reply)
}

// 定義済みエラーコード
const (
	ErrCodeDecisionExpired = "DECISION_EXPIRED"
	ErrCodeNoLinkedUser    = "NO_LINKED_USER"
	ErrCodeChannelNotFound = "CHANNEL_NOT_FOUND"
	ErrCodeChannelExists   = "CHANNEL_EXISTS"
	ErrCodeUsage           = "USAGE"
)

// NewDecisionExpiredError は承認/拒否トークンが失効している場合のエラーを生成する。
// 再起動などで保留中の判断が失われた後に古いボタンが押されたケース。
func NewDecisionExpiredError() *BotError {
	return &BotError{
		Code:  ErrCodeDecisionExpired,
		Reply: "This decision has expired. Ask the user to send /start again.",
	}
}

// NewNoLinkedUserError は返信先ユーザーが見つからない場合のエラーを生成する。
func NewNoLinkedUserError() *BotError {
	return &BotError{
		Code:  ErrCodeNoLinkedUser,
		Reply: "No linked user found for this message.",
	}
}

// NewChannelNotFoundError はチャンネルが登録されていない場合のエラーを生成する。
func NewChannelNotFoundError() *BotError {
	return &BotError{
		Code:  ErrCodeChannelNotFound,
		Reply: "Channel not found.",
	}
}

// NewChannelExistsError はチャンネルが既に登録済みの場合のエラーを生成する。
// 追加操作は冪等であり、重複追加はエラーではなく通知として扱う。
func NewChannelExistsError() *BotError {
	return &BotError{
		Code:  ErrCodeChannelExists,
		Reply: "Channel already added.",
	}
}

// NewUsageError はコマンドの使用方法が誤っている場合のエラーを生成する。
func NewUsageError(usage string) *BotError {
	return &BotError{
		Code:  ErrCodeUsage,
		Reply: usage,
	}
}
