// Package journal turns a flat list of trades into the statistics every view
// renders. All functions are pure: no I/O, no mutation of their inputs, and
// the same inputs always produce the same outputs.
//
// Malformed input is rejected where rows are decoded, so nothing here returns
// an error. A trade whose date does not parse simply matches no month or year.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/models"
)

// MonthStat aggregates the trades of one calendar month.
type MonthStat struct {
	Month      time.Month      `json:"month"`
	TotalPL    decimal.Decimal `json:"totalPL"`
	TradeCount int             `json:"tradeCount"`
	WinCount   int             `json:"winCount"`
	LossCount  int             `json:"lossCount"`
}

// WinRate returns the month's win rate in whole percent, 0 for an empty month.
func (m MonthStat) WinRate() int {
	return WinRate(m.WinCount, m.TradeCount)
}

// YearTotals sums a monthly breakdown.
type YearTotals struct {
	TotalPL     decimal.Decimal `json:"totalPL"`
	TotalTrades int             `json:"totalTrades"`
	TotalWins   int             `json:"totalWins"`
	TotalLosses int             `json:"totalLosses"`
	WinRate     int             `json:"winRate"`
}

// Averages holds the mean winning and losing amounts. AvgLoser is negative.
type Averages struct {
	AvgWinner decimal.Decimal `json:"avgWinner"`
	AvgLoser  decimal.Decimal `json:"avgLoser"`
}

// Extremes holds the best and worst trade of a set.
type Extremes struct {
	Best  models.Trade `json:"best"`
	Worst models.Trade `json:"worst"`
}

// Summary is the headline block shown for any subset of trades
// (a month, a day, a tag).
type Summary struct {
	TotalPL    decimal.Decimal `json:"totalPL"`
	TradeCount int             `json:"tradeCount"`
	WinCount   int             `json:"winCount"`
	LossCount  int             `json:"lossCount"`
	WinRate    int             `json:"winRate"`
	Averages
}

// WinRate returns round(100 * wins / total) with halves rounded up,
// or 0 when total is 0.
func WinRate(wins, total int) int {
	if total <= 0 {
		return 0
	}
	// Integer form of floor(100*wins/total + 0.5).
	return (200*wins + total) / (2 * total)
}

// isWin and isLoss treat an exactly-zero amount as neither.
func isWin(t models.Trade) bool  { return t.Amount.IsPositive() }
func isLoss(t models.Trade) bool { return t.Amount.IsNegative() }

// MonthlyBreakdown returns exactly twelve MonthStat values, January first,
// for the trades dated in year. Months without trades are all zero.
func MonthlyBreakdown(trades []models.Trade, year int) []MonthStat {
	months := make([]MonthStat, 12)
	for i := range months {
		months[i] = MonthStat{Month: time.Month(i + 1), TotalPL: decimal.Zero}
	}

	for _, t := range trades {
		day, err := t.Day()
		if err != nil || day.Year() != year {
			continue
		}
		m := &months[day.Month()-1]
		m.TotalPL = m.TotalPL.Add(t.Amount)
		m.TradeCount++
		if isWin(t) {
			m.WinCount++
		}
		if isLoss(t) {
			m.LossCount++
		}
	}
	return months
}

// YearlyTotals sums a monthly breakdown into yearly totals.
func YearlyTotals(months []MonthStat) YearTotals {
	totals := YearTotals{TotalPL: decimal.Zero}
	for _, m := range months {
		totals.TotalPL = totals.TotalPL.Add(m.TotalPL)
		totals.TotalTrades += m.TradeCount
		totals.TotalWins += m.WinCount
		totals.TotalLosses += m.LossCount
	}
	totals.WinRate = WinRate(totals.TotalWins, totals.TotalTrades)
	return totals
}

// BestWorst returns the trades with the largest and smallest amounts.
// Ties go to the trade met first. ok is false for an empty set.
func BestWorst(trades []models.Trade) (Extremes, bool) {
	if len(trades) == 0 {
		return Extremes{}, false
	}
	ex := Extremes{Best: trades[0], Worst: trades[0]}
	for _, t := range trades[1:] {
		if t.Amount.GreaterThan(ex.Best.Amount) {
			ex.Best = t
		}
		if t.Amount.LessThan(ex.Worst.Amount) {
			ex.Worst = t
		}
	}
	return ex, true
}

// AveragesOf returns the mean amount of the winners and of the losers.
// Either is 0 when the subset is empty.
func AveragesOf(trades []models.Trade) Averages {
	winSum, lossSum := decimal.Zero, decimal.Zero
	var wins, losses int64
	for _, t := range trades {
		switch {
		case isWin(t):
			winSum = winSum.Add(t.Amount)
			wins++
		case isLoss(t):
			lossSum = lossSum.Add(t.Amount)
			losses++
		}
	}
	return Averages{
		AvgWinner: mean(winSum, wins),
		AvgLoser:  mean(lossSum, losses),
	}
}

// AveragePerTrade returns total / count, or 0 for no trades.
func AveragePerTrade(total decimal.Decimal, count int) decimal.Decimal {
	return mean(total, int64(count))
}

func mean(sum decimal.Decimal, n int64) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(n))
}

// Summarize computes the headline block for an arbitrary set of trades.
func Summarize(trades []models.Trade) Summary {
	s := Summary{TotalPL: decimal.Zero, TradeCount: len(trades)}
	for _, t := range trades {
		s.TotalPL = s.TotalPL.Add(t.Amount)
		if isWin(t) {
			s.WinCount++
		}
		if isLoss(t) {
			s.LossCount++
		}
	}
	s.WinRate = WinRate(s.WinCount, s.TradeCount)
	s.Averages = AveragesOf(trades)
	return s
}
