package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// DefaultIndicatorKeys are always computed for a live snapshot so that common
// technical conditions can be evaluated without extra configuration.
var DefaultIndicatorKeys = []string{"rsi_14", "ema_20", "ema_50", "sma_20"}

// ComputeIndicators derives the latest value for each requested key from a
// close-price series. Keys follow "<name>_<period>" (rsi_14, ema_20, sma_50).
// Keys that cannot be computed (unknown name, short series, NaN tail) are
// omitted rather than reported as zero.
func ComputeIndicators(closes []float64, keys []string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(keys))
	for _, key := range keys {
		v, err := indicatorValue(closes, key)
		if err != nil {
			continue
		}
		out[key] = v
	}
	return out
}

func indicatorValue(closes []float64, key string) (decimal.Decimal, error) {
	name, period, err := parseIndicatorKey(key)
	if err != nil {
		return decimal.Zero, err
	}
	if len(closes) < period+1 {
		return decimal.Zero, fmt.Errorf("series too short for %s: have %d", key, len(closes))
	}
	var series []float64
	switch name {
	case "rsi":
		series = talib.Rsi(closes, period)
	case "ema":
		series = talib.Ema(closes, period)
	case "sma":
		series = talib.Sma(closes, period)
	case "wma":
		series = talib.Wma(closes, period)
	default:
		return decimal.Zero, fmt.Errorf("unknown indicator %q", name)
	}
	if len(series) == 0 {
		return decimal.Zero, fmt.Errorf("empty %s series", key)
	}
	last := series[len(series)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return decimal.Zero, fmt.Errorf("%s tail is not finite", key)
	}
	return decimal.NewFromFloat(last), nil
}

func parseIndicatorKey(key string) (name string, period int, err error) {
	key = strings.ToLower(strings.TrimSpace(key))
	idx := strings.LastIndex(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, fmt.Errorf("indicator key must look like rsi_14, got %q", key)
	}
	period, convErr := strconv.Atoi(key[idx+1:])
	if convErr != nil || period <= 0 {
		return "", 0, fmt.Errorf("invalid indicator period in %q", key)
	}
	return key[:idx], period, nil
}
