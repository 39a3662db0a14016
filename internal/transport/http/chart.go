package apihttp

import (
	"net/http"
	"sort"

	"condor/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

// handleStatisticsChart renders the per-symbol execution counts as an HTML
// bar chart for the admin page.
func (r *Router) handleStatisticsChart(c *gin.Context) {
	if r.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "历史库未启用"})
		return
	}
	stats, err := r.history.Stats(c.Request.Context())
	if err != nil {
		logger.Errorf("[api] statistics chart failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	symbols := make([]string, 0, len(stats.BySymbol))
	for symbol := range stats.BySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	values := make([]opts.BarData, 0, len(symbols))
	for _, symbol := range symbols {
		values = append(values, opts.BarData{Value: stats.BySymbol[symbol]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, PageTitle: "订单执行统计"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "各交易对执行次数",
			Subtitle: "含成功与失败记录",
		}),
	)
	bar.SetXAxis(symbols).AddSeries("executions", values)

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := bar.Render(c.Writer); err != nil {
		logger.Errorf("[api] statistics chart render failed err=%v", err)
	}
}
