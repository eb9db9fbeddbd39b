package handlers

import (
	"context"
	"net/http"
	"strings"

	"gomitas-bot/internal/core/bot"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Responder 對話引擎
type Responder interface {
	HandleMessage(ctx context.Context, msg bot.Message) []string
}

// Outbound 外送訊息佇列
type Outbound interface {
	Enqueue(to, text string, onDone func(error)) error
}

// HandoffChecker 人工協調時段
type HandoffChecker interface {
	Active(identity string) bool
}

// ChatRequest 聊天閘道轉送的訊息
type ChatRequest struct {
	From string `json:"from" binding:"required"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// ChatResponse 回覆內容；queued 為成功排入外送佇列的數量
type ChatResponse struct {
	Replies    []string `json:"replies"`
	Queued     int      `json:"queued"`
	Suppressed bool     `json:"suppressed,omitempty"`
}

// ChatHandler 聊天訊息處理器
type ChatHandler struct {
	engine  Responder
	outbox  Outbound
	handoff HandoffChecker
}

// NewChatHandler 創建聊天訊息處理器；outbox 與 handoff 可為 nil
func NewChatHandler(engine Responder, outbox Outbound, handoff HandoffChecker) *ChatHandler {
	return &ChatHandler{
		engine:  engine,
		outbox:  outbox,
		handoff: handoff,
	}
}

// HandleWebhook POST /webhook/chat
func (h *ChatHandler) HandleWebhook(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Code: common.ErrCodeInvalidRequest, Message: "from required"})
		return
	}
	from := strings.TrimSuffix(strings.TrimSpace(req.From), "@c.us")

	// 店家正在與顧客協調取貨，機器人不插話
	if h.handoff != nil && h.handoff.Active(from) {
		common.LogInfo("Chat message suppressed during handoff", zap.String("from", from))
		c.JSON(http.StatusOK, ChatResponse{Replies: []string{}, Suppressed: true})
		return
	}

	replies := h.engine.HandleMessage(c.Request.Context(), bot.Message{
		From: from,
		Name: req.Name,
		Text: req.Text,
	})

	queued := 0
	if h.outbox != nil {
		for _, text := range replies {
			if err := h.outbox.Enqueue(from, text, nil); err != nil {
				common.LogWarn("Failed to enqueue chat reply", zap.String("to", from), zap.Error(err))
				continue
			}
			queued++
		}
	}

	c.JSON(http.StatusOK, ChatResponse{Replies: replies, Queued: queued})
}
