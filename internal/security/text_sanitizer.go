// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は参加者名や支出の説明など、利用者が入力した
// 自由記述テキストからHTMLを除去する。bluemondayのStrictPolicyで
// 全タグを落とし、表示時のXSSを防ぐ。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由記述テキストのサニタイズ機能のインターフェース。
type TextSanitizerService interface {
	// Sanitize はHTMLタグを除去し、制御文字を落として前後の空白を詰めた文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicy は &, <, > などをエスケープして返すため、プレーンテキストに戻す。
	// 保存値はプレーンテキストで持ち、出力側（JSONエンコーダ）でエスケープする。
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, cleaned)
	return strings.Join(strings.Fields(cleaned), " ")
}
