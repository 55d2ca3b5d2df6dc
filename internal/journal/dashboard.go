package journal

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/models"
)

// Dashboard is everything the yearly overview shows.
type Dashboard struct {
	Year            int             `json:"year"`
	Months          []MonthStat     `json:"months"`
	Totals          YearTotals      `json:"totals"`
	Averages        Averages        `json:"averages"`
	AvgPerTrade     decimal.Decimal `json:"avgPerTrade"`
	Best            *models.Trade   `json:"best,omitempty"`
	Worst           *models.Trade   `json:"worst,omitempty"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
	AccountBalance  decimal.Decimal `json:"accountBalance"`
	Tags            []TagStat       `json:"tags"`
}

// MonthView is the calendar/list view of one month.
type MonthView struct {
	Year    int                 `json:"year"`
	Month   time.Month          `json:"month"`
	Summary Summary             `json:"summary"`
	Days    map[string]DayTotal `json:"days"`
	List    []DayGroup          `json:"list"`
}

// BuildDashboard assembles the yearly overview. Monthly figures, yearly totals
// and the account balance cover year only; averages, best/worst and tag
// performance cover every trade passed in.
func BuildDashboard(trades []models.Trade, tags []models.Tag, year int, startingBalance decimal.Decimal) Dashboard {
	months := MonthlyBreakdown(trades, year)
	totals := YearlyTotals(months)

	d := Dashboard{
		Year:            year,
		Months:          months,
		Totals:          totals,
		Averages:        AveragesOf(trades),
		AvgPerTrade:     AveragePerTrade(totals.TotalPL, totals.TotalTrades),
		StartingBalance: startingBalance,
		AccountBalance:  AccountBalance(startingBalance, totals.TotalPL),
		Tags:            TagPerformance(trades, tags),
	}
	if ex, ok := BestWorst(trades); ok {
		d.Best, d.Worst = &ex.Best, &ex.Worst
	}
	return d
}

// BuildMonthView scopes trades to one month and summarizes it.
func BuildMonthView(trades []models.Trade, year int, month time.Month) MonthView {
	inMonth := FilterByMonth(trades, year, month)
	return MonthView{
		Year:    year,
		Month:   month,
		Summary: Summarize(inMonth),
		Days:    DailyTotals(inMonth),
		List:    GroupByDate(inMonth),
	}
}

// AccountBalance projects the balance from the starting balance and realized P&L.
func AccountBalance(startingBalance, pl decimal.Decimal) decimal.Decimal {
	return startingBalance.Add(pl)
}
