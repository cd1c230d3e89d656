// Package forecast projects daily unit demand from a product's sales history
// with a moving average, a linear trend and a weekend uplift.
package forecast

import (
	"math"

	"github.com/eunmann/shopsight/pkg/model"
)

// Forecast methods.
const (
	MethodMovingAverage = "moving_average_with_trend"
	MethodInsufficient  = "insufficient_data"
)

const (
	trendWindow    = 7
	weekendUplift  = 1.2
	baseUncertain  = 0.10
	dailyUncertain = 0.01
)

// Prediction is the expected demand for one future day.
type Prediction struct {
	Date            model.Date `json:"date"`
	PredictedUnits  float64    `json:"predicted_units"`
	ConfidenceLower float64    `json:"confidence_lower"`
	ConfidenceUpper float64    `json:"confidence_upper"`
}

// Forecast is a product's projected demand.
type Forecast struct {
	ArticleID string       `json:"article_id"`
	Forecast  []Prediction `json:"forecast"`
	Method    string       `json:"method"`
}

// Generate forecasts days days after the last row of history, which must be
// sorted by date. The trend is the difference between the mean units of the
// last and first week, spread per day, and needs at least two weeks of rows.
// The confidence band widens by one percentage point per day.
func Generate(articleID string, history []model.SalesRow, days int) Forecast {
	f := Forecast{ArticleID: articleID, Forecast: []Prediction{}, Method: MethodInsufficient}
	if len(history) == 0 || days <= 0 {
		return f
	}
	f.Method = MethodMovingAverage

	avg := meanUnits(history)
	var trend float64
	if len(history) >= 2*trendWindow {
		recent := meanUnits(history[len(history)-trendWindow:])
		older := meanUnits(history[:trendWindow])
		trend = (recent - older) / trendWindow
	}

	last := history[len(history)-1].Date
	f.Forecast = make([]Prediction, days)
	for i := 1; i <= days; i++ {
		date := last.AddDays(i)
		predicted := avg + trend*float64(i)
		if date.IsWeekend() {
			predicted *= weekendUplift
		}
		predicted = math.Max(0, predicted)
		u := baseUncertain + dailyUncertain*float64(i)
		f.Forecast[i-1] = Prediction{
			Date:            date,
			PredictedUnits:  round1(predicted),
			ConfidenceLower: round1(predicted * (1 - u)),
			ConfidenceUpper: round1(predicted * (1 + u)),
		}
	}
	return f
}

func meanUnits(rows []model.SalesRow) float64 {
	var sum int64
	for _, r := range rows {
		sum += r.UnitsSold
	}
	return float64(sum) / float64(len(rows))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
