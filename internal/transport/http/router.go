package apihttp

import (
	"condor/internal/dispatch"
	"condor/internal/notify"
	"condor/internal/store"
	"condor/internal/store/history"
	"condor/internal/tracker"

	"github.com/gin-gonic/gin"
)

// Router 暴露条件、自动订单、历史与通知相关接口。
type Router struct {
	store      store.Store
	history    *history.Store
	tracker    *tracker.Tracker
	dispatcher *dispatch.Dispatcher
	notifier   *notify.Dispatcher
	templates  *notify.Registry
	popup      *notify.PopupChannel

	// reloadSettings 由应用装配层提供：重读配置并下发新的渠道设置。
	reloadSettings func() error
}

// Register 将 /api 路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	conditions := group.Group("/conditions")
	conditions.GET("", r.handleListConditions)
	conditions.POST("", r.handleCreateCondition)
	conditions.GET("/:id", r.handleGetCondition)
	conditions.POST("/:id/enable", r.handleSetConditionEnabled(true))
	conditions.POST("/:id/disable", r.handleSetConditionEnabled(false))

	orders := group.Group("/auto-orders")
	orders.GET("", r.handleListAutoOrders)
	orders.POST("", r.handleCreateAutoOrder)
	orders.GET("/statistics", r.handleStatistics)
	orders.GET("/statistics/chart", r.handleStatisticsChart)
	orders.GET("/:id", r.handleGetAutoOrder)
	orders.POST("/:id/pause", r.handleSetAutoOrderState("paused"))
	orders.POST("/:id/resume", r.handleSetAutoOrderState("active"))
	orders.POST("/:id/stop", r.handleSetAutoOrderState("stopped"))
	orders.GET("/:id/executions", r.handleListExecutions)

	hist := group.Group("/order-history")
	hist.GET("", r.handleHistoryList)
	hist.GET("/stats", r.handleStatistics)
	hist.GET("/real-time-status", r.handleRealTimeStatus)
	if r.tracker != nil {
		hist.POST("/:id/update-status", r.handleUpdateStatus)
	}

	notifications := group.Group("/notifications")
	notifications.GET("/channels", r.handleChannelStats)
	notifications.POST("/reload", r.handleTemplateReload)
	notifications.GET("/popup", r.handlePopupFeed)
}
