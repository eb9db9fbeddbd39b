package handlers

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"

	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Promoter 群發促銷訊息
type Promoter interface {
	SendPromotionToAll(ctx context.Context, text string) (int, error)
}

// MenuResponse 網頁下單使用的公開菜單
type MenuResponse struct {
	Categories    []menu.Category `json:"categories"`
	ChamoyOptions []menu.Flavor   `json:"chamoyOptions"`
}

// PromoRequest 促銷訊息
type PromoRequest struct {
	Text string `json:"text"`
}

// HandleMenu GET /api/menu，季節分類依設定隱藏
func HandleMenu(provider *menu.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		catalog := provider.Snapshot()
		c.JSON(http.StatusOK, MenuResponse{
			Categories:    catalog.Categories,
			ChamoyOptions: catalog.Flavors,
		})
	}
}

// HandleSendPromotion 立即群發促銷；minLen 為文字最短長度
func HandleSendPromotion(promoter Promoter, minLen int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PromoRequest
		if err := c.ShouldBindJSON(&req); err != nil || utf8.RuneCountInString(strings.TrimSpace(req.Text)) < minLen {
			c.JSON(http.StatusBadRequest, common.ErrorResponse{Code: common.ErrCodeInvalidRequest, Message: "text required"})
			return
		}

		queued, err := promoter.SendPromotionToAll(c.Request.Context(), req.Text)
		if err != nil {
			status, body := common.ToResponse(err)
			common.LogError("Failed to send promotion", zap.Error(err), zap.Int("status", status))
			c.JSON(status, body)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "queued": queued})
	}
}
