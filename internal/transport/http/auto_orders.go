package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"condor/internal/logger"
	"condor/internal/model"
	"condor/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// autoOrderSchema rejects malformed payloads before decimal parsing so the
// client gets a field-level error instead of a decode failure.
const autoOrderSchema = `{
	"type": "object",
	"properties": {
		"strategy_name": {"type": "string", "minLength": 1},
		"symbol": {"type": "string", "minLength": 1},
		"market_type": {"enum": ["spot", "futures"]},
		"order_side": {"enum": ["buy", "sell"]},
		"quantity": {"type": ["number", "string"]},
		"entry_condition_id": {"type": "string", "minLength": 1},
		"stop_loss_price": {"type": ["number", "string"]},
		"take_profit_price": {"type": ["number", "string"]},
		"max_slippage": {"type": "number", "minimum": 0, "maximum": 1},
		"max_spread": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["strategy_name", "symbol", "market_type", "order_side", "quantity", "entry_condition_id"]
}`

var compiledAutoOrderSchema = jsonschema.MustCompileString("auto_order.json", autoOrderSchema)

type autoOrderView struct {
	model.AutoOrder
	State    model.AutoOrderState `json:"state"`
	InFlight bool                 `json:"in_flight"`
}

func (r *Router) orderView(o model.AutoOrder) autoOrderView {
	v := autoOrderView{AutoOrder: o, State: o.State()}
	if r.dispatcher != nil {
		v.InFlight = r.dispatcher.InFlight(o.ID)
	}
	return v
}

func (r *Router) handleListAutoOrders(c *gin.Context) {
	orders, err := r.store.ListAutoOrders(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] list auto orders failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]autoOrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, r.orderView(o))
	}
	c.JSON(http.StatusOK, gin.H{"auto_orders": views, "total": len(views)})
}

func (r *Router) handleCreateAutoOrder(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := compiledAutoOrderSchema.Validate(generic); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid auto order: %v", err)})
		return
	}
	var order model.AutoOrder
	if err := json.Unmarshal(raw, &order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(order.ID) == "" {
		order.ID = uuid.NewString()
	}
	if !gjson.GetBytes(raw, "is_active").Exists() {
		order.IsActive = true
	}
	order.ExecutionCount = 0
	order.LastExecutionResult = ""
	if err := order.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// 入场条件必须已存在。
	if _, err := r.store.GetCondition(c.Request.Context(), order.EntryConditionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "entry condition not found: " + order.EntryConditionID})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := r.store.SaveAutoOrder(c.Request.Context(), &order); err != nil {
		logger.Errorf("[api] create auto order failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] auto order created ip=%s id=%s strategy=%s symbol=%s side=%s",
		c.ClientIP(), order.ID, order.StrategyName, order.Symbol, order.Side)
	c.JSON(http.StatusCreated, gin.H{"auto_order": r.orderView(order)})
}

func (r *Router) handleGetAutoOrder(c *gin.Context) {
	order, err := r.store.GetAutoOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "auto order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_order": r.orderView(*order)})
}

func (r *Router) handleSetAutoOrderState(state model.AutoOrderState) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := r.store.SetAutoOrderState(c.Request.Context(), id, state); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "auto order not found"})
				return
			}
			logger.Errorf("[api] set auto order state failed ip=%s id=%s state=%s err=%v", c.ClientIP(), id, state, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		logger.Infof("[api] auto order state ip=%s id=%s state=%s", c.ClientIP(), id, state)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "state": state})
	}
}

func (r *Router) handleListExecutions(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	execs, err := r.store.ListExecutions(c.Request.Context(), id, limit)
	if err != nil {
		logger.Errorf("[api] list executions failed ip=%s order=%s err=%v", c.ClientIP(), id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": execs, "total": len(execs)})
}
