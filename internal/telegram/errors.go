package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind はBot APIエラーの分類を表す。
type ErrorKind int

const (
	// ErrKindUnknown は分類不能なエラー。呼び出し元はログに記録して処理を継続する。
	ErrKindUnknown ErrorKind = iota
	// ErrKindRateLimited はレート制限（429）。retry_after秒の待機後に再試行可能。
	ErrKindRateLimited
	// ErrKindBlocked は宛先に到達不能（ボットのブロック、アカウント削除）。
	// 宛先への送信を諦めて管理者へ通知する。
	ErrKindBlocked
	// ErrKindNotFound は対象が存在しない（チャット未検出、メッセージ削除済み）。
	ErrKindNotFound
)

// APIError はBot APIが返すエラー応答を表す。
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration // 429の場合のみ設定される
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

// Kind はエラー応答を分類する。
func (e *APIError) Kind() ErrorKind {
	desc := strings.ToLower(e.Description)
	switch {
	case e.Code == 429:
		return ErrKindRateLimited
	case e.Code == 403 && (strings.Contains(desc, "blocked") || strings.Contains(desc, "deactivated")):
		return ErrKindBlocked
	case (e.Code == 400 || e.Code == 404) && strings.Contains(desc, "not found"):
		return ErrKindNotFound
	default:
		return ErrKindUnknown
	}
}

// KindOf はエラーを分類する。APIError以外はErrKindUnknownを返す。
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind()
	}
	return ErrKindUnknown
}

// IsBlocked は宛先到達不能エラーかどうかを返す。
func IsBlocked(err error) bool {
	return KindOf(err) == ErrKindBlocked
}

// IsRateLimited はレート制限エラーかどうかを返す。
func IsRateLimited(err error) bool {
	return KindOf(err) == ErrKindRateLimited
}

// IsNotFound は対象未検出エラーかどうかを返す。
func IsNotFound(err error) bool {
	return KindOf(err) == ErrKindNotFound
}
