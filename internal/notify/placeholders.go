package notify

import (
	"strconv"
	"strings"
	"time"

	"condor/internal/model"
)

// recognizedPlaceholders is the closed set substituted into templates; any
// other {token} is left verbatim.
var recognizedPlaceholders = []string{
	"condition_name",
	"result_value",
	"result_details",
	"trigger_time",
	"symbol",
	"priority",
	"priority_emoji",
}

// Render substitutes recognized placeholders from data. Keys absent from
// data keep their literal {token} form.
func Render(template string, data map[string]string) string {
	pairs := make([]string, 0, len(recognizedPlaceholders)*2)
	for _, key := range recognizedPlaceholders {
		v, ok := data[key]
		if !ok {
			continue
		}
		pairs = append(pairs, "{"+key+"}", v)
	}
	if len(pairs) == 0 {
		return template
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// priorityEmoji maps condition priority onto the markers the client shows:
// 5 is most urgent.
func priorityEmoji(priority int) string {
	switch priority {
	case 5:
		return "🔴"
	case 4:
		return "🟠"
	case 3:
		return "🟡"
	case 2:
		return "🔵"
	default:
		return "⚪"
	}
}

func triggerData(ev model.TriggerEvent) map[string]string {
	c := ev.Condition
	return map[string]string{
		"condition_name": c.Name,
		"result_value":   ev.Observed.String(),
		"result_details": c.Name + " " + string(c.Operator) + " " + c.Value.String(),
		"trigger_time":   ev.FiredAt.Format(time.RFC3339),
		"symbol":         c.Symbol,
		"priority":       strconv.Itoa(c.Priority),
		"priority_emoji": priorityEmoji(c.Priority),
	}
}

func executionData(ev model.ExecutionEvent) map[string]string {
	e := ev.Execution
	o := ev.AutoOrder
	details := "execution " + string(e.Status)
	if e.FailureReason != "" {
		details += ": " + e.FailureReason
	}
	return map[string]string{
		"condition_name": o.StrategyName,
		"result_value":   string(e.Status),
		"result_details": details,
		"trigger_time":   ev.Occurred.Format(time.RFC3339),
		"symbol":         o.Symbol,
		"priority":       "3",
		"priority_emoji": priorityEmoji(3),
	}
}
