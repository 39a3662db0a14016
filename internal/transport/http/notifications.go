package apihttp

import (
	"net/http"

	"condor/internal/logger"

	"github.com/gin-gonic/gin"
)

func (r *Router) handleChannelStats(c *gin.Context) {
	if r.notifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "通知未启用"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": r.notifier.Stats()})
}

// handleTemplateReload 手动触发模板与渠道设置重载（模板文件变更也会经
// watcher 自动重载）。
func (r *Router) handleTemplateReload(c *gin.Context) {
	if r.templates == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "通知未启用"})
		return
	}
	if err := r.templates.Reload(); err != nil {
		logger.Warnf("[api] template reload failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if r.reloadSettings != nil {
		if err := r.reloadSettings(); err != nil {
			logger.Warnf("[api] settings reload failed ip=%s err=%v", c.ClientIP(), err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	logger.Infof("[api] notification config reloaded ip=%s", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePopupFeed 供桌面客户端轮询弹窗消息，取出即清空。
func (r *Router) handlePopupFeed(c *gin.Context) {
	if r.popup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "弹窗渠道未启用"})
		return
	}
	messages := r.popup.Drain()
	c.JSON(http.StatusOK, gin.H{"messages": messages, "count": len(messages)})
}
