package journal

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/models"
)

// DayTotal is the P&L of one calendar day.
type DayTotal struct {
	TotalPL    decimal.Decimal `json:"totalPL"`
	TradeCount int             `json:"tradeCount"`
}

// DayGroup is one day of the list view.
type DayGroup struct {
	Date   string         `json:"date"`
	Total  DayTotal       `json:"total"`
	Trades []models.Trade `json:"trades"`
}

// Outcome selects winners, losers or everything.
type Outcome string

const (
	OutcomeAll     Outcome = "all"
	OutcomeWinners Outcome = "winners"
	OutcomeLosers  Outcome = "losers"
)

// SortOrder is a list view ordering.
type SortOrder string

const (
	SortLatest  SortOrder = "latest"
	SortOldest  SortOrder = "oldest"
	SortHighest SortOrder = "highest"
	SortLowest  SortOrder = "lowest"
)

// ParseOutcome validates an outcome name. The empty string means OutcomeAll.
func ParseOutcome(s string) (Outcome, error) {
	switch o := Outcome(s); o {
	case "":
		return OutcomeAll, nil
	case OutcomeAll, OutcomeWinners, OutcomeLosers:
		return o, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// ParseSortOrder validates a sort order name. The empty string means SortLatest.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(s); o {
	case "":
		return SortLatest, nil
	case SortLatest, SortOldest, SortHighest, SortLowest:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// FilterByMonth returns the trades whose calendar date falls in month of year.
// Dates are compared as written; no time zone conversion is applied.
func FilterByMonth(trades []models.Trade, year int, month time.Month) []models.Trade {
	var out []models.Trade
	for _, t := range trades {
		day, err := t.Day()
		if err != nil {
			continue
		}
		if day.Year() == year && day.Month() == month {
			out = append(out, t)
		}
	}
	return out
}

// FilterByYear returns the trades dated in year.
func FilterByYear(trades []models.Trade, year int) []models.Trade {
	var out []models.Trade
	for _, t := range trades {
		if day, err := t.Day(); err == nil && day.Year() == year {
			out = append(out, t)
		}
	}
	return out
}

// DailyTotals groups trades by their exact date string.
func DailyTotals(trades []models.Trade) map[string]DayTotal {
	totals := make(map[string]DayTotal)
	for _, t := range trades {
		d, ok := totals[t.Date]
		if !ok {
			d.TotalPL = decimal.Zero
		}
		d.TotalPL = d.TotalPL.Add(t.Amount)
		d.TradeCount++
		totals[t.Date] = d
	}
	return totals
}

// GroupByDate returns one group per date, newest date first. Trades inside a
// group keep their input order.
func GroupByDate(trades []models.Trade) []DayGroup {
	index := make(map[string]int)
	var groups []DayGroup
	for _, t := range trades {
		i, ok := index[t.Date]
		if !ok {
			i = len(groups)
			index[t.Date] = i
			groups = append(groups, DayGroup{Date: t.Date, Total: DayTotal{TotalPL: decimal.Zero}})
		}
		g := &groups[i]
		g.Trades = append(g.Trades, t)
		g.Total.TotalPL = g.Total.TotalPL.Add(t.Amount)
		g.Total.TradeCount++
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].Date > groups[b].Date })
	return groups
}

// FilterOutcome keeps winners, losers or everything. Zero amounts are only
// kept by OutcomeAll.
func FilterOutcome(trades []models.Trade, o Outcome) []models.Trade {
	if o == OutcomeAll || o == "" {
		return append([]models.Trade(nil), trades...)
	}
	var out []models.Trade
	for _, t := range trades {
		if (o == OutcomeWinners && isWin(t)) || (o == OutcomeLosers && isLoss(t)) {
			out = append(out, t)
		}
	}
	return out
}

// SortTrades returns a sorted copy of trades. Equal keys keep input order.
func SortTrades(trades []models.Trade, order SortOrder) []models.Trade {
	out := append([]models.Trade(nil), trades...)
	var less func(a, b models.Trade) bool
	switch order {
	case SortOldest:
		less = func(a, b models.Trade) bool { return a.Date < b.Date }
	case SortHighest:
		less = func(a, b models.Trade) bool { return a.Amount.GreaterThan(b.Amount) }
	case SortLowest:
		less = func(a, b models.Trade) bool { return a.Amount.LessThan(b.Amount) }
	default:
		less = func(a, b models.Trade) bool { return a.Date > b.Date }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
