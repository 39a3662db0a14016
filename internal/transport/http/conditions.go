package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"condor/internal/logger"
	"condor/internal/model"
	"condor/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

func (r *Router) handleListConditions(c *gin.Context) {
	conditions, err := r.store.ListConditions(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] list conditions failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conditions": conditions, "total": len(conditions)})
}

func (r *Router) handleCreateCondition(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var cond model.Condition
	if err := json.Unmarshal(raw, &cond); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 未显式给出 enabled 时默认启用。
	if !gjson.GetBytes(raw, "enabled").Exists() {
		cond.Enabled = true
	}
	if strings.TrimSpace(cond.ID) == "" {
		cond.ID = uuid.NewString()
	}
	if cond.Enabled {
		cond.Status = model.ConditionIdle
	} else {
		cond.Status = model.ConditionDisabled
	}
	cond.TriggerCount = 0
	cond.LastTriggered = nil
	if err := cond.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := r.store.SaveCondition(c.Request.Context(), &cond); err != nil {
		logger.Errorf("[api] create condition failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] condition created ip=%s id=%s name=%s type=%s", c.ClientIP(), cond.ID, cond.Name, cond.Type)
	c.JSON(http.StatusCreated, gin.H{"condition": cond})
}

func (r *Router) handleGetCondition(c *gin.Context) {
	cond, err := r.store.GetCondition(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "condition not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"condition": cond})
}

func (r *Router) handleSetConditionEnabled(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := r.store.SetConditionEnabled(c.Request.Context(), id, enabled); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "condition not found"})
				return
			}
			logger.Errorf("[api] set condition enabled failed ip=%s id=%s err=%v", c.ClientIP(), id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logger.Infof("[api] condition enabled=%v ip=%s id=%s", enabled, c.ClientIP(), id)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "enabled": enabled})
	}
}
