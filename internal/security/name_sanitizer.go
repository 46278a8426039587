package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MaxDisplayNameLength は表示名の最大文字数。
const MaxDisplayNameLength = 128

// NameSanitizer はアカウントの表示名からマークアップと制御文字を取り除く。
// 表示名はクライアントでそのまま描画されるため、タグは一切許可しない。
type NameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerを生成する。
func NewNameSanitizer() *NameSanitizer {
	return &NameSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、制御文字を取り除いて前後の空白を詰めた表示名を返す。
// MaxDisplayNameLength を超える部分は切り詰める。
func (s *NameSanitizer) Sanitize(name string) string {
	// StrictPolicyはテキストをエスケープして返すため、表示名として元の文字に戻す
	cleaned := html.UnescapeString(s.policy.Sanitize(name))
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")

	if runes := []rune(cleaned); len(runes) > MaxDisplayNameLength {
		cleaned = string(runes[:MaxDisplayNameLength])
	}
	return cleaned
}
