// Package stream 以 Server-Sent Events 推送訂單看板更新
package stream

import (
	"net/http"
	"time"

	"gomitas-bot/internal/core/events"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Subscriber 事件來源
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// HandleEvents GET /api/events；連線建立後先送出 ready，之後每個事件一筆，閒置時送心跳
func HandleEvents(hub Subscriber, heartbeat time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ch, cancel := hub.Subscribe()
		defer cancel()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		c.SSEvent("ready", gin.H{"ok": true})
		c.Writer.Flush()

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-c.Request.Context().Done():
				common.LogDebug("Event stream closed by client", zap.String("client_ip", c.ClientIP()))
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				c.SSEvent(evt.Type, evt)
				c.Writer.Flush()
			case <-ticker.C:
				c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
				c.Writer.Flush()
			}
		}
	}
}
