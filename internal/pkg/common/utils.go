package common

import (
	"github.com/google/uuid"
)

// orderIDAlphabet 不含易混淆字元 (O/0, I/1)
const orderIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// OrderIDLength 訂單編號長度
const OrderIDLength = 8

// GenerateUUID 生成 UUID
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateOrderID 生成給顧客看的短訂單編號
func GenerateOrderID() string {
	// uuid v4 的第 6、8 位元組含版本與變體位元，只取其餘位元組；字母表長度 32，取低 5 位元
	raw := uuid.New()
	entropy := append(raw[:6:6], raw[9:11]...)
	id := make([]byte, OrderIDLength)
	for i := range id {
		id[i] = orderIDAlphabet[int(entropy[i])&31]
	}
	return string(id)
}
