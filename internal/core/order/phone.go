package order

import "strings"

// NormalizePhone 正規化電話為含國碼的純數字；墨西哥手機使用 WhatsApp 慣用的 521 前綴
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = "52"
	}

	digits := Digits(raw)
	if digits == "" {
		return ""
	}

	digits = strings.TrimPrefix(digits, "00")

	mx := countryCode == "52"
	if strings.HasPrefix(digits, countryCode) {
		if mx && len(digits) == 12 && !strings.HasPrefix(digits, "521") {
			return "521" + digits[2:]
		}
		return digits
	}

	switch len(digits) {
	case 10:
		if mx {
			return "521" + digits
		}
		return countryCode + digits
	default:
		return digits
	}
}

// Digits 只保留數字
func Digits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
