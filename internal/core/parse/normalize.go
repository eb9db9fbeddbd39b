// Package parse 提供聊天文字的正規化與數量、口味、選單編號解析
package parse

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize 轉小寫、去除重音符號，只保留 a-z、0-9 與單一空白
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	// transform.Chain 帶有狀態，不可跨 goroutine 共用
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, strings.ToLower(text))
	if err != nil {
		stripped = strings.ToLower(text)
	}

	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return ' '
		}
	}, stripped)

	return strings.Join(strings.Fields(mapped), " ")
}

// FirstWord 回傳正規化文字的第一個詞
func FirstWord(normalized string) string {
	if i := strings.IndexByte(normalized, ' '); i >= 0 {
		return normalized[:i]
	}
	return normalized
}

// ContainsAny 正規化文字是否包含任一關鍵字（子字串比對）
func ContainsAny(normalized string, keywords []string) bool {
	for _, k := range keywords {
		k = Normalize(k)
		if k != "" && strings.Contains(normalized, k) {
			return true
		}
	}
	return false
}

// IsDigits 非空且只含 ASCII 數字
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
