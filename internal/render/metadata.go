// ABOUTME: Formats assistant message metadata: confidence, symbols, metrics, sources
// ABOUTME: Metric values are shown as currency, percentage, or grouped numbers by key

package render

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"

	"github.com/2389/finbot-client/internal/api"
)

// Metadata returns one line per present metadata field, in a fixed order.
func (r *Renderer) Metadata(m *api.Metadata) []string {
	if m == nil {
		return nil
	}
	var lines []string
	if m.Confidence != nil && *m.Confidence > 0 {
		lines = append(lines, r.muted.Sprint("Confidence: ")+fmt.Sprintf("%d%%", int(math.Round(*m.Confidence*100))))
	}
	if len(m.StockSymbols) > 0 {
		symbols := make([]string, len(m.StockSymbols))
		for i, s := range m.StockSymbols {
			symbols[i] = r.strong.Sprint("$" + s)
		}
		lines = append(lines, r.muted.Sprint("Symbols: ")+strings.Join(symbols, " "))
	}
	if len(m.FinancialMetrics) > 0 {
		keys := make([]string, 0, len(m.FinancialMetrics))
		for k := range m.FinancialMetrics {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			lines = append(lines, r.muted.Sprint(MetricLabel(k)+": ")+FormatMetric(k, m.FinancialMetrics[k]))
		}
	}
	if len(m.Sources) > 0 {
		lines = append(lines, r.muted.Sprint("Sources: ")+strings.Join(m.Sources, ", "))
	}
	return lines
}

// MetricLabel turns "peRatio" or "market_cap" into "Pe Ratio" or "Market Cap".
func MetricLabel(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range key {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case unicode.IsUpper(r):
			flush()
			cur = append(cur, unicode.ToLower(r))
		default:
			cur = append(cur, r)
		}
	}
	flush()
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

// FormatMetric formats v by what its key names: prices and values as
// dollars, percents and changes as percentages, anything else as a grouped
// number.
func FormatMetric(key string, v float64) string {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "price") || strings.Contains(k, "value"):
		if v < 0 {
			return "-$" + humanize.CommafWithDigits(-v, 2)
		}
		return "$" + humanize.CommafWithDigits(v, 2)
	case strings.Contains(k, "percent") || strings.Contains(k, "change"):
		return fmt.Sprintf("%.2f%%", v)
	default:
		return humanize.CommafWithDigits(v, 3)
	}
}
