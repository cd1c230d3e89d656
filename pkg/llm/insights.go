package llm

import (
	"fmt"
	"strings"

	"github.com/eunmann/shopsight/pkg/humanfmt"
	"github.com/shopspring/decimal"
)

const maxInsights = 4

var (
	bulletPrefixes = []string{"1.", "2.", "3.", "4.", "-", "•"}
	strongRevenue  = decimal.NewFromInt(1000)
)

// ParseInsights splits a model reply into a summary (the first non-blank
// line) and up to four insights taken from numbered or bulleted lines.
// A reply without such lines becomes a single analysis insight.
func ParseInsights(text string) Insights {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	res := Insights{Summary: "Sales data analyzed.", Source: SourceModel}
	if len(lines) > 0 {
		res.Summary = lines[0]
	}

	for _, l := range lines[min(1, len(lines)):] {
		if !hasBullet(l) {
			continue
		}
		clean := strings.TrimSpace(strings.TrimLeft(l, "1234567890.-•"))
		if clean == "" {
			continue
		}
		res.Insights = append(res.Insights, Insight{
			Type:        "trend",
			Title:       firstSentence(clean),
			Description: clean,
			Confidence:  0.8,
		})
		if len(res.Insights) == maxInsights {
			break
		}
	}
	if len(res.Insights) == 0 {
		res.Insights = []Insight{{
			Type:        "analysis",
			Title:       "Performance Analysis",
			Description: strings.TrimSpace(text),
			Confidence:  0.75,
		}}
	}
	return res
}

func hasBullet(line string) bool {
	for _, p := range bulletPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// firstSentence returns text up to the first sentence terminator followed by
// a space, or the first 60 characters with an ellipsis.
func firstSentence(text string) string {
	end := len(text)
	for _, sep := range []string{". ", "! ", "? "} {
		if i := strings.Index(text, sep); i > 0 && i < end {
			end = i
		}
	}
	if end < len(text) {
		return strings.TrimSpace(text[:end+1])
	}
	r := []rune(text)
	if len(r) > 60 {
		r = r[:60]
	}
	return string(r) + "..."
}

// TemplateInsights builds insights without a model.
func TemplateInsights(in SummaryInput) Insights {
	name := in.ProductName
	if name == "" {
		name = "This product"
	}
	revenue := humanfmt.Money(in.TotalRevenue)
	trend := in.Trend
	if trend == "" {
		trend = "stable"
	}

	var summary string
	switch trend {
	case "increasing":
		summary = fmt.Sprintf("%s shows strong growth with %s in revenue over %d days of sales. Sales are trending upward, indicating increasing demand.", name, revenue, in.DaysOfData)
	case "decreasing":
		summary = fmt.Sprintf("%s has generated %s in revenue, but shows a declining trend. Consider promotional strategies to boost sales.", name, revenue)
	default:
		summary = fmt.Sprintf("%s maintains stable performance with %s in revenue and %d units sold over %d days of sales.", name, revenue, in.TotalUnits, in.DaysOfData)
	}

	insights := []Insight{
		{
			Type:        "trend",
			Title:       "Sales Trend: " + titleCase(trend),
			Description: fmt.Sprintf("The product shows a %s sales pattern over the analyzed period.", strings.ReplaceAll(trend, "_", " ")),
			Confidence:  0.85,
		},
		{
			Type:        "metric",
			Title:       fmt.Sprintf("Average Daily Sales: %.1f units", in.AvgDailyUnits),
			Description: fmt.Sprintf("The product sells an average of %.1f units per day.", in.AvgDailyUnits),
			Confidence:  0.9,
		},
	}
	if in.TotalRevenue.GreaterThan(strongRevenue) {
		insights = append(insights, Insight{
			Type:        "performance",
			Title:       "Strong Revenue Performance",
			Description: fmt.Sprintf("Generated %s in total revenue, indicating strong market demand.", revenue),
			Confidence:  0.8,
		})
	}
	return Insights{ArticleID: in.ArticleID, Summary: summary, Insights: insights, Source: SourceFallback}
}

// titleCase turns "insufficient_data" into "Insufficient Data".
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
