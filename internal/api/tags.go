package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/veritasvoid/TradeZen/internal/journal"
	"github.com/veritasvoid/TradeZen/internal/models"
)

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Emoji string `json:"emoji"`
	Order int    `json:"order"`
}

func (r tagRequest) toTag() (models.Tag, bool) {
	t := models.Tag{
		Name:  strings.TrimSpace(r.Name),
		Color: strings.TrimSpace(r.Color),
		Emoji: strings.TrimSpace(r.Emoji),
		Order: r.Order,
	}
	return t, t.Name != ""
}

func (s *Server) listTagsHandler(c *gin.Context) {
	tags, err := s.journal.ListTags(c.Request.Context())
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, tags, nil)
}

func (s *Server) addTagHandler(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	tag, ok := req.toTag()
	if !ok {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	tag, err := s.journal.AddTag(c.Request.Context(), tag)
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, tag, nil)
}

func (s *Server) updateTagHandler(c *gin.Context) {
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	tag, ok := req.toTag()
	if !ok {
		Error(c, http.StatusBadRequest, "name required", nil)
		return
	}
	tag.ID = c.Param("id")
	tag, err := s.journal.UpdateTag(c.Request.Context(), tag)
	if err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, tag, nil)
}

func (s *Server) deleteTagHandler(c *gin.Context) {
	if err := s.journal.DeleteTag(c.Request.Context(), c.Param("id")); err != nil {
		remoteError(c, err)
		return
	}
	Ok(c, gin.H{"tagId": c.Param("id")}, nil)
}

type tagDrillDown struct {
	TagID   string          `json:"tagId"`
	Current *models.Tag     `json:"current,omitempty"`
	Summary journal.Summary `json:"summary"`
	Trades  []tradeView     `json:"trades"`
}

// tagTradesHandler lists the trades recorded with a tag. It also works for
// tags that have since been deleted.
func (s *Server) tagTradesHandler(c *gin.Context) {
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
	tagID := c.Param("id")
	trades, err := s.journal.ListTrades(ctx)
	if err != nil {
		remoteError(c, err)
		return
	}
	tag, ok, err := s.journal.GetTag(ctx, tagID)
	if err != nil {
		remoteError(c, err)
		return
	}

	forTag := journal.TradesForTag(trades, tagID)
	out := tagDrillDown{
		TagID:   tagID,
		Summary: journal.Summarize(forTag),
		Trades:  s.viewTrades(journal.SortTrades(journal.FilterOutcome(forTag, outcome), order)),
	}
	if ok {
		out.Current = &tag
	}
	Ok(c, out, nil)
}
