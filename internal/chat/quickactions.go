// ABOUTME: Catalog of financial quick actions and knowledge sources
// ABOUTME: Quick actions expand into prompt text for a subject such as a ticker

package chat

import "strings"

// Category groups quick actions.
type Category string

const (
	CategoryAnalysis   Category = "analysis"
	CategoryComparison Category = "comparison"
	CategoryForecast   Category = "forecast"
	CategoryNews       Category = "news"
)

// QuickAction is a canned prompt prefix.
type QuickAction struct {
	ID       string
	Label    string
	Prompt   string
	Category Category
}

// Expand returns the prompt applied to subject, e.g. a ticker or company.
// An empty subject leaves the prompt open for the user to finish.
func (q QuickAction) Expand(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return q.Prompt + " "
	}
	return q.Prompt + " " + subject
}

// QuickActions is the fixed catalog, in display order.
var QuickActions = []QuickAction{
	{ID: "stock-analysis", Label: "Stock Analysis", Prompt: "Analyze the financial performance and key metrics of", Category: CategoryAnalysis},
	{ID: "portfolio-review", Label: "Portfolio Review", Prompt: "Review my portfolio allocation and suggest improvements for", Category: CategoryAnalysis},
	{ID: "earnings-forecast", Label: "Earnings Forecast", Prompt: "What are the earnings expectations and forecasts for", Category: CategoryForecast},
	{ID: "risk-assessment", Label: "Risk Assessment", Prompt: "Assess the investment risks and volatility of", Category: CategoryAnalysis},
	{ID: "competitor-compare", Label: "Compare Competitors", Prompt: "Compare the financial metrics and performance against competitors for", Category: CategoryComparison},
	{ID: "market-sentiment", Label: "Market Sentiment", Prompt: "What is the current market sentiment and analyst opinion on", Category: CategoryNews},
	{ID: "valuation-calc", Label: "Valuation Calculator", Prompt: "Calculate the intrinsic value and valuation metrics for", Category: CategoryAnalysis},
	{ID: "dividend-info", Label: "Dividend Analysis", Prompt: "Analyze the dividend history, yield, and sustainability for", Category: CategoryAnalysis},
	{ID: "sector-overview", Label: "Sector Overview", Prompt: "Provide an overview of the sector performance and trends for", Category: CategoryAnalysis},
	{ID: "breaking-news", Label: "Breaking News", Prompt: "What are the latest news and developments affecting", Category: CategoryNews},
}

// FindQuickAction looks up a quick action by id.
func FindQuickAction(id string) (QuickAction, bool) {
	for _, q := range QuickActions {
		if q.ID == id {
			return q, true
		}
	}
	return QuickAction{}, false
}

// KnowledgeSource is a body of material the assistant can draw on.
type KnowledgeSource struct {
	ID          string
	Label       string
	Description string
}

// AllSources is the id meaning no restriction.
const AllSources = "all"

// KnowledgeSources is the fixed catalog, "all" first.
var KnowledgeSources = []KnowledgeSource{
	{ID: AllSources, Label: "All Sources", Description: "Search across all knowledge bases"},
	{ID: "financial-reports", Label: "Financial Reports", Description: "10-K, 10-Q, annual reports"},
	{ID: "market-data", Label: "Market Data", Description: "Real-time prices, charts, indices"},
	{ID: "news-analysis", Label: "News & Analysis", Description: "Financial news, analyst reports"},
	{ID: "regulatory-docs", Label: "Regulatory", Description: "SEC filings, compliance docs"},
	{ID: "research-papers", Label: "Research", Description: "Academic papers, studies"},
	{ID: "earnings-calls", Label: "Earnings Calls", Description: "Transcripts, Q&A sessions"},
}
