// ABOUTME: Canned assistant replies for the dev server
// ABOUTME: Tags stock symbols in the question and attaches deterministic metrics

package devserver

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"slices"
	"strings"

	"github.com/2389/finbot-client/internal/api"
)

// knownTickers are recognized without a leading "$".
var knownTickers = map[string]string{
	"AAPL":  "Apple",
	"AMZN":  "Amazon",
	"GOOGL": "Alphabet",
	"JPM":   "JPMorgan Chase",
	"META":  "Meta Platforms",
	"MSFT":  "Microsoft",
	"NVDA":  "NVIDIA",
	"SPY":   "SPDR S&P 500 ETF",
	"TSLA":  "Tesla",
}

var (
	dollarSymbol = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
	bareWord     = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// sourceKeywords map question keywords to the knowledge source cited.
var sourceKeywords = []struct {
	keyword string
	source  string
}{
	{"earning", "Earnings Reports"},
	{"news", "Market News"},
	{"sec", "SEC Filings"},
	{"filing", "SEC Filings"},
	{"analyst", "Analyst Reports"},
	{"economy", "Economic Data"},
	{"inflation", "Economic Data"},
	{"sentiment", "Social Sentiment"},
}

// ExtractSymbols returns the stock symbols mentioned in text, in order of
// first appearance. "$XYZ" always counts; bare words count when known.
func ExtractSymbols(text string) []string {
	var out []string
	add := func(sym string) {
		sym = strings.ToUpper(sym)
		if !slices.Contains(out, sym) {
			out = append(out, sym)
		}
	}

	type hit struct {
		pos int
		sym string
	}
	var hits []hit
	for _, m := range dollarSymbol.FindAllStringSubmatchIndex(text, -1) {
		hits = append(hits, hit{m[0], text[m[2]:m[3]]})
	}
	for _, m := range bareWord.FindAllStringIndex(text, -1) {
		if _, ok := knownTickers[text[m[0]:m[1]]]; ok {
			hits = append(hits, hit{m[0], text[m[0]:m[1]]})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int { return a.pos - b.pos })
	for _, h := range hits {
		add(h.sym)
	}
	return out
}

// Reply builds the assistant answer for question.
func Reply(question string) (string, *api.Metadata) {
	symbols := ExtractSymbols(question)

	lower := strings.ToLower(question)
	sources := []string{"Market Data"}
	for _, sk := range sourceKeywords {
		if strings.Contains(lower, sk.keyword) && !slices.Contains(sources, sk.source) {
			sources = append(sources, sk.source)
		}
	}

	confidence := 0.5
	if len(symbols) > 0 {
		confidence = min(0.6+0.1*float64(len(symbols)), 0.95)
	}

	meta := &api.Metadata{
		Confidence:   &confidence,
		Sources:      sources,
		StockSymbols: symbols,
	}

	var b strings.Builder
	if len(symbols) == 0 {
		b.WriteString("## Market overview\n\n")
		b.WriteString("I could not find a specific ticker in your question. ")
		b.WriteString("Mention a symbol such as **$AAPL** for a focused analysis.\n\n")
		b.WriteString("- Broad indices are trading within their recent range\n")
		b.WriteString("- Diversification remains the main lever for managing risk\n")
		return b.String(), meta
	}

	meta.FinancialMetrics = make(map[string]float64)
	b.WriteString("## Analysis\n\n")
	b.WriteString("| Symbol | Price | Change |\n|---|---|---|\n")
	for _, sym := range symbols {
		price, change := quote(sym)
		prefix := ""
		if len(symbols) > 1 {
			prefix = strings.ToLower(sym) + "_"
		}
		meta.FinancialMetrics[prefix+"price"] = price
		meta.FinancialMetrics[prefix+"change_percent"] = change
		fmt.Fprintf(&b, "| $%s | %.2f | %+.2f%% |\n", sym, price, change)
	}
	b.WriteString("\n")
	for _, sym := range symbols {
		name := knownTickers[sym]
		if name == "" {
			name = sym
		}
		fmt.Fprintf(&b, "- **%s**: momentum is %s over the last session\n", name, trend(sym))
	}
	b.WriteString("\n> This is simulated data from the development server, not investment advice.\n")
	return b.String(), meta
}

// quote derives a stable price and daily change for sym.
func quote(sym string) (price, change float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sym))
	v := h.Sum32()
	price = 20 + float64(v%50000)/100
	change = float64(int(v>>16)%1000-500) / 100
	return price, change
}

func trend(sym string) string {
	if _, change := quote(sym); change >= 0 {
		return "positive"
	}
	return "negative"
}
