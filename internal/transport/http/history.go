package apihttp

import (
	"net/http"
	"strconv"
	"strings"

	"condor/internal/logger"
	"condor/internal/store/history"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

func (r *Router) handleHistoryList(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史库未启用"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	entries, err := r.history.List(c.Request.Context(), history.ListOptions{
		Symbol: c.Query("symbol"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		logger.Errorf("[api] order history failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries), "offset": offset})
}

func (r *Router) handleStatistics(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史库未启用"})
		return
	}
	stats, err := r.history.Stats(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] history stats failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (r *Router) handleRealTimeStatus(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史库未启用"})
		return
	}
	entries, err := r.history.InFlight(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] real-time status failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"in_flight": entries, "count": len(entries)})
}

// handleUpdateStatus 是下单 API 的回调入口：按 external id 定位执行记录，
// 标记完成或走失败重试策略。
func (r *Router) handleUpdateStatus(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("id"))
	if externalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "external id required"})
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status := strings.ToLower(strings.TrimSpace(gjson.GetBytes(raw, "status").String()))
	reason := strings.TrimSpace(gjson.GetBytes(raw, "reason").String())
	if reason == "" {
		reason = strings.TrimSpace(gjson.GetBytes(raw, "error").String())
	}

	execID, ok := r.tracker.ByExternalID(externalID)
	if !ok {
		logger.Warnf("[api] update-status unknown external id ip=%s external=%s", c.ClientIP(), externalID)
		c.JSON(http.StatusNotFound, gin.H{"error": "no live execution for external id"})
		return
	}

	switch status {
	case "completed", "filled", "success":
		err = r.tracker.Confirm(c.Request.Context(), execID)
	case "failed", "rejected", "canceled", "cancelled":
		if reason == "" {
			reason = "placement api reported " + status
		}
		err = r.tracker.Fail(c.Request.Context(), execID, reason)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be completed or failed, got " + status})
		return
	}
	if err != nil {
		logger.Errorf("[api] update-status failed ip=%s external=%s status=%s err=%v", c.ClientIP(), externalID, status, err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] update-status ip=%s external=%s exec=%s status=%s", c.ClientIP(), externalID, execID, status)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
