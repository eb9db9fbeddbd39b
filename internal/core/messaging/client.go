// Package messaging 負責對顧客的外送訊息：HTTP 閘道客戶端、傳送佇列與人工協調時段
package messaging

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gomitas-bot/internal/infrastructure/config"
	"gomitas-bot/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Sender 傳送訊息給聯絡人
type Sender interface {
	SendMessage(ctx context.Context, to, text string) error
}

// SendRequest 閘道請求
type SendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// ChatRef 將電話或聊天代號轉為閘道使用的 <digits>@c.us
func ChatRef(to string) string {
	if strings.HasSuffix(to, "@c.us") {
		return to
	}
	var b strings.Builder
	for _, r := range to {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + "@c.us"
}

// Client 訊息閘道客戶端
type Client struct {
	client *resty.Client
}

// NewClient 創建訊息閘道客戶端
func NewClient(cfg *config.MessagingConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Token != "" {
		client.SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.Token))
	}

	return &Client{client: client}
}

// SendMessage 傳送文字訊息
func (c *Client) SendMessage(ctx context.Context, to, text string) error {
	chatRef := ChatRef(to)
	if chatRef == "@c.us" {
		return fmt.Errorf("invalid recipient %q", to)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(SendRequest{To: chatRef, Text: text}).
		Post("/messages")
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("messaging gateway returned %d: %s", resp.StatusCode(), resp.String())
	}

	common.LogDebug("Message sent",
		zap.String("to", chatRef),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}

// LogSender 未設定閘道時只記錄訊息，供開發使用
type LogSender struct{}

// SendMessage 記錄訊息
func (LogSender) SendMessage(ctx context.Context, to, text string) error {
	common.LogInfo("Outbound message (no gateway configured)",
		zap.String("to", ChatRef(to)),
		zap.Int("length", len(text)),
	)
	common.LogDebug("Outbound message body", zap.String("to", ChatRef(to)), zap.String("text", text))
	return nil
}

// NewSender 依設定選擇閘道客戶端或記錄用傳送者
func NewSender(cfg *config.MessagingConfig) Sender {
	if cfg.BaseURL == "" {
		common.LogWarn("Messaging gateway not configured, outbound messages will only be logged")
		return LogSender{}
	}
	common.LogInfo("Messaging gateway configured",
		zap.String("base_url", cfg.BaseURL),
		zap.String("token", config.MaskSecret(cfg.Token)),
	)
	return NewClient(cfg)
}
