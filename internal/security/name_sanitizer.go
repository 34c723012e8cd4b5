// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizerService はユーザーが操作可能な表示名をサニタイズする。
// 表示名はHTMLパースモードの管理者向け通知に埋め込まれるため、
// bluemondayの厳格ポリシーでタグを全て除去し、マークアップ注入を防ぐ。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
type NameSanitizerService interface {
	// Sanitize は表示名からHTMLタグを全て除去して返す。
	// 空文字列や除去後に空になる入力にはプレースホルダを返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(name string) string
}

// placeholderName は表示名が解決・利用できない場合のプレースホルダ。
const placeholderName = "Unknown User"

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去し、テキストのみを通過させる。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は表示名からHTMLタグを全て除去して返す。
func (s *nameSanitizer) Sanitize(name string) string {
	cleaned := strings.TrimSpace(s.policy.Sanitize(name))
	if cleaned == "" {
		return placeholderName
	}
	return cleaned
}

// compile-time interface check
var _ NameSanitizerService = (*nameSanitizer)(nil)
