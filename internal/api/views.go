package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/journal"
)

// displayMeta carries the display settings and preformatted headline amounts.
// Privacy mode masks these strings only. Raw amounts in data stay exact, since
// the view layer needs their sign and magnitude for charts and calendar
// colouring, and must render money from meta.display.
func (s *Server) displayMeta(amounts map[string]decimal.Decimal) map[string]any {
	currency, privacy := s.settings.Currency(), s.settings.PrivacyMode()
	display := make(map[string]string, len(amounts))
	for key, amount := range amounts {
		display[key] = journal.FormatAmount(amount, currency, privacy)
	}
	return map[string]any{
		"currency":    currency,
		"privacyMode": privacy,
		"display":     display,
	}
}

func (s *Server) dashboardHandler(c *gin.Context) {
	year := s.now().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			Error(c, http.StatusBadRequest, "invalid year", nil)
			return
		}
		year = y
	}

	ctx := c.Request.Context()
	trades, err := s.journal.ListTrades(ctx)
	if err != nil {
		remoteError(c, err)
		return
	}
	tags, err := s.journal.ListTags(ctx)
	if err != nil {
		remoteError(c, err)
		return
	}

	d := journal.BuildDashboard(trades, tags, year, s.settings.StartingBalance())
	amounts := map[string]decimal.Decimal{
		"totalPL":         d.Totals.TotalPL,
		"accountBalance":  d.AccountBalance,
		"startingBalance": d.StartingBalance,
		"avgWinner":       d.Averages.AvgWinner,
		"avgLoser":        d.Averages.AvgLoser,
		"avgPerTrade":     d.AvgPerTrade,
	}
	if d.Best != nil {
		amounts["best"] = d.Best.Amount
		amounts["worst"] = d.Worst.Amount
	}
	for _, tag := range d.Tags {
		amounts["tag:"+tag.TagID] = tag.TotalPL
	}
	Ok(c, d, s.displayMeta(amounts))
}

func (s *Server) monthHandler(c *gin.Context) {
	year, month, err := parseYearMonth(c.Param("year"), c.Param("month"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	trades, err := s.journal.MonthTrades(c.Request.Context(), year, month)
	if err != nil {
		remoteError(c, err)
		return
	}

	v := journal.BuildMonthView(trades, year, month)
	Ok(c, v, s.displayMeta(map[string]decimal.Decimal{
		"totalPL":   v.Summary.TotalPL,
		"avgWinner": v.Summary.AvgWinner,
		"avgLoser":  v.Summary.AvgLoser,
	}))
}
