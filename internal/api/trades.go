package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/veritasvoid/TradeZen/internal/journal"
	"github.com/veritasvoid/TradeZen/internal/models"
	"github.com/veritasvoid/TradeZen/internal/store"
)

const maxScreenshotSize = 10 << 20

type tradeView struct {
	models.Trade
	Display  string `json:"display"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (s *Server) viewTrades(trades []models.Trade) []tradeView {
	currency, privacy := s.settings.Currency(), s.settings.PrivacyMode()
	out := make([]tradeView, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeView{
			Trade:    t,
			Display:  journal.FormatAmount(t.Amount, currency, privacy),
			ImageURL: store.ImageURL(t.ImageRef),
		})
	}
	return out
}

type tradeRequest struct {
	Date     string           `json:"date"`
	Time     string           `json:"time"`
	Amount   *decimal.Decimal `json:"amount"`
	TagID    string           `json:"tagId"`
	ImageRef string           `json:"imageRef"`
	Notes    string           `json:"notes"`
}

var (
	errBadDate       = errors.New("date must be YYYY-MM-DD")
	errMissingAmount = errors.New("amount is required")
)

// toTrade validates the request and snapshots the current tag appearance.
// A missing or null amount is rejected; zero must be sent explicitly.
func (s *Server) toTrade(c *gin.Context, req tradeRequest) (models.Trade, int, error) {
	t := models.Trade{
		Date:     strings.TrimSpace(req.Date),
		Time:     strings.TrimSpace(req.Time),
		ImageRef: strings.TrimSpace(req.ImageRef),
		Notes:    req.Notes,
	}
	if req.Amount == nil {
		return t, http.StatusBadRequest, errMissingAmount
	}
	t.Amount = *req.Amount
	if _, err := t.Day(); err != nil {
		return t, http.StatusBadRequest, errBadDate
	}

	tagID := strings.TrimSpace(req.TagID)
	if tagID == "" || tagID == models.NoTag {
		t.ApplyTag(nil)
		return t, 0, nil
	}
	tag, ok, err := s.journal.GetTag(c.Request.Context(), tagID)
	if err != nil {
		return t, statusOf(err), err
	}
	if !ok {
		return t, http.StatusBadRequest, errors.New("unknown tag " + tagID)
	}
	t.ApplyTag(&tag)
	return t, 0, nil
}

func parseYearMonth(yearStr, monthStr string) (int, time.Month, error) {
	year, err := strconv.Atoi(yearStr)
	if err != nil || year < 1 {
		return 0, 0, errors.New("invalid year")
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, errors.New("invalid month")
	}
	return year, time.Month(month), nil
}

func (s *Server) listTradesHandler(c *gin.Context) {
	outcome, err := journal.ParseOutcome(c.Query("outcome"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	order, err := journal.ParseSortOrder(c.Query("sort"))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	ctx := c.Request.Context()
	var trades []models.Trade
	if c.Query("year") != "" || c.Query("month") != "" {
		year, month, err := parseYearMonth(c.Query("year"), c.Query("month"))
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		trades, err = s.journal.MonthTrades(ctx, year, month)
		if err != nil {
			remoteError(c, err)
			return
		}
	} else {
		trades, err = s.journal.ListTrades(ctx)
		if err != nil {
			remoteError(c, err)
			return
		}
	}

	trades = journal.SortTrades(journal.FilterOutcome(trades, outcome), order)
	Ok(c, s.viewTrades(trades), map[string]any{"count": len(trades)})
}

func (s *Server) addTradeHandler(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	trade, status, err := s.toTrade(c, req)
	if err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	trade, err = s.journal.AddTrade(c.Request.Context(), trade)
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, s.viewTrades([]models.Trade{trade})[0], nil)
}

func (s *Server) updateTradeHandler(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	trade, status, err := s.toTrade(c, req)
	if err != nil {
		Error(c, status, err.Error(), nil)
		return
	}
	trade.ID = c.Param("id")
	trade, err = s.journal.UpdateTrade(c.Request.Context(), trade)
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, s.viewTrades([]models.Trade{trade})[0], nil)
}

func (s *Server) deleteTradeHandler(c *gin.Context) {
	if err := s.journal.DeleteTrade(c.Request.Context(), c.Param("id")); err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, gin.H{"tradeId": c.Param("id")}, nil)
}

// uploadScreenshotHandler takes a multipart "file" plus the trade's date and time.
func (s *Server) uploadScreenshotHandler(c *gin.Context) {
	date := c.PostForm("date")
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		Error(c, http.StatusBadRequest, errBadDate.Error(), nil)
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		Error(c, http.StatusBadRequest, "file required", nil)
		return
	}
	if header.Size > maxScreenshotSize {
		Error(c, http.StatusRequestEntityTooLarge, "screenshot too large", nil)
		return
	}
	f, err := header.Open()
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable file", nil)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		Error(c, http.StatusBadRequest, "unreadable file", nil)
		return
	}

	id, err := s.journal.UploadScreenshot(c.Request.Context(), data, date, c.PostForm("time"))
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, gin.H{"imageRef": id, "imageUrl": store.ImageURL(id)}, nil)
}
