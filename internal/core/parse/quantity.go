package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	explicitQtyRe = regexp.MustCompile(`(?i)x\s*(\d+)`)
	integerRe     = regexp.MustCompile(`\d+`)
	selectionRe   = regexp.MustCompile(`^(\d+)\s*(?:x\s*(\d+))?$`)
	flavorSplitRe = regexp.MustCompile(`[,:;\n]`)
)

// ParseQuantity 從原始訊息取出數量：優先 x<N>，否則取最後一個整數，都沒有則為 1。
// end 為數量字樣結束的位元組位置，沒有數量字樣時為 -1。
func ParseQuantity(raw string) (qty int, end int) {
	if m := explicitQtyRe.FindStringSubmatchIndex(raw); m != nil {
		return atoiSaturated(raw[m[2]:m[3]]), m[1]
	}
	all := integerRe.FindAllStringIndex(raw, -1)
	if len(all) == 0 {
		return 1, -1
	}
	last := all[len(all)-1]
	return atoiSaturated(raw[last[0]:last[1]]), last[1]
}

// atoiSaturated 純數字字串轉整數，溢位時回傳 math.MaxInt32
func atoiSaturated(digits string) int {
	n, err := strconv.Atoi(digits)
	if err != nil || n > math.MaxInt32 {
		return math.MaxInt32
	}
	return n
}

// ParseSelection 解析選單回覆 "N" 或 "NxM"，回傳 1 起算的編號與數量
func ParseSelection(normalized string) (index, qty int, ok bool) {
	m := selectionRe.FindStringSubmatch(normalized)
	if m == nil {
		return 0, 0, false
	}
	index = atoiSaturated(m[1])
	qty = 1
	if m[2] != "" {
		qty = atoiSaturated(m[2])
	}
	return index, qty, true
}

// ParseIndex 解析 1..n 的選單編號並回傳 0 起算索引；只看第一個詞
func ParseIndex(normalized string, n int) (int, bool) {
	word := FirstWord(normalized)
	if word == "" {
		return 0, false
	}
	v, err := strconv.Atoi(word)
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}

// ParseFlavorList 從文字中依逗號、冒號、分號或換行切出口味清單，並對應到正式口味名稱。
// 每段先整段比對，失敗時再以該段最後一個詞比對；無法辨識的段落略過。
func ParseFlavorList(text string, flavors []string, aliases map[string]string) []string {
	var out []string
	for _, piece := range flavorSplitRe.Split(text, -1) {
		token := Normalize(piece)
		if token == "" {
			continue
		}
		if f, ok := MatchFlavor(token, flavors, aliases); ok {
			out = append(out, f)
			continue
		}
		if i := strings.LastIndexByte(token, ' '); i >= 0 {
			if f, ok := MatchFlavor(token[i+1:], flavors, aliases); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// MatchFlavor 以別名表或前綴比對（任一方為另一方前綴）找出正式口味名稱
func MatchFlavor(token string, flavors []string, aliases map[string]string) (string, bool) {
	if token == "" {
		return "", false
	}
	if f, ok := aliases[token]; ok {
		return f, true
	}
	for _, f := range flavors {
		nf := Normalize(f)
		if strings.HasPrefix(nf, token) || strings.HasPrefix(token, nf) {
			return f, true
		}
	}
	return "", false
}
