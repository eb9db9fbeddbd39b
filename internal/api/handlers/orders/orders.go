package orders

import (
	"context"
	"net/http"

	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service 訂單處理程序所需的訂單服務
type Service interface {
	CreateFromWeb(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	CreateFromWebhook(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	UpdateStatus(ctx context.Context, id, status string) (*order.Order, error)
	Delete(ctx context.Context, id string) (*order.Order, error)
}

// StatusRequest 變更訂單狀態
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// Handler 訂單處理程序
type Handler struct {
	svc Service
}

// NewHandler 創建訂單處理程序
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// HandleList GET /api/orders
func (h *Handler) HandleList(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to list orders", err)
		return
	}
	if list == nil {
		list = []order.Order{}
	}
	c.JSON(http.StatusOK, list)
}

// HandleCreate POST /api/orders，網頁表單下單
func (h *Handler) HandleCreate(c *gin.Context) {
	var req order.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.LogWarn("請求格式無效", zap.Error(err), zap.String("request_id", requestID(c)))
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Code: common.ErrCodeInvalidRequest, Message: "customer{ name, phone } and items[] required"})
		return
	}

	created, err := h.svc.CreateFromWeb(c.Request.Context(), req)
	if err != nil {
		respondError(c, "Failed to create web order", err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// HandleWebhookCreate POST /webhook/order，外部自動化服務下單
func (h *Handler) HandleWebhookCreate(c *gin.Context) {
	var req order.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Code: common.ErrCodeInvalidRequest, Message: "customer and items required"})
		return
	}

	created, err := h.svc.CreateFromWebhook(c.Request.Context(), req)
	if err != nil {
		respondError(c, "Failed to create webhook order", err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// HandleUpdateStatus POST /api/orders/:id/status
func (h *Handler) HandleUpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.ErrorResponse{Code: common.ErrInvalidStatus.Code, Message: "Invalid status"})
		return
	}

	updated, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, "Failed to update order status", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// HandleDelete DELETE /api/orders/:id
func (h *Handler) HandleDelete(c *gin.Context) {
	removed, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to delete order", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": removed.ID})
}

func requestID(c *gin.Context) string {
	return c.Writer.Header().Get("X-Request-ID")
}

// respondError 依錯誤類型回應；5xx 才以 error 級別記錄
func respondError(c *gin.Context, msg string, err error) {
	status, body := common.ToResponse(err)
	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status", status),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestID(c)),
	}
	if status >= http.StatusInternalServerError {
		common.LogError(msg, fields...)
	} else {
		common.LogWarn(msg, fields...)
	}
	c.JSON(status, body)
}
