package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/veritasvoid/TradeZen/internal/errs"
	"go.uber.org/zap"
)

type sessionStatus struct {
	SignedIn       bool   `json:"signedIn"`
	SettingsLoaded bool   `json:"settingsLoaded"`
	ConsentURL     string `json:"consentUrl,omitempty"`
}

func (s *Server) sessionStatusHandler(c *gin.Context) {
	status := sessionStatus{
		SignedIn:       s.session.SignedIn(),
		SettingsLoaded: s.settings.Loaded(),
	}
	if url, ok := s.consent.PendingURL(); ok {
		status.ConsentURL = url
	}
	Ok(c, status, nil)
}

// signInHandler starts sign-in. It answers as soon as sign-in either finishes
// or needs the user's consent; in the latter case the consent URL is returned
// with 202 and sign-in completes when the provider redirects to the callback.
func (s *Server) signInHandler(c *gin.Context) {
	ctx := c.Request.Context()
	if err := s.session.Initialize(ctx); err != nil {
		remoteError(c, err)
		return
	}

	done := make(chan error, 1)
	go func() {
		// Consent may take longer than this request.
		bg := context.WithoutCancel(ctx)
		_, err := s.session.SignIn(bg)
		if err == nil {
			s.loadSettings(bg)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Warn("Sign-in failed", zap.Error(err))
			remoteError(c, err)
			return
		}
		Ok(c, sessionStatus{SignedIn: true, SettingsLoaded: s.settings.Loaded()}, nil)
	case url := <-s.consent.Prompts():
		c.JSON(http.StatusAccepted, apiResponse{
			Code:    0,
			Message: "consent required",
			Data:    sessionStatus{ConsentURL: url},
		})
	case <-time.After(s.consentWait):
		c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "sign-in in progress"})
	case <-ctx.Done():
	}
}

func (s *Server) loadSettings(ctx context.Context) {
	if err := s.settings.Load(ctx); err != nil {
		s.logger.Warn("Settings not loaded, using local copy", zap.Error(err))
	}
}

func (s *Server) signOutHandler(c *gin.Context) {
	s.session.SignOut()
	Ok(c, sessionStatus{}, nil)
}

func (s *Server) callbackHandler(c *gin.Context) {
	err := s.consent.Resolve(c.Query("state"), c.Query("code"), c.Query("error"))
	if errors.Is(err, errs.ErrNotFound) {
		Error(c, http.StatusNotFound, "no sign-in is waiting for this response", nil)
		return
	}
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if c.Query("error") != "" {
		Error(c, http.StatusForbidden, "sign-in was declined", nil)
		return
	}
	c.String(http.StatusOK, "Signed in to TradeZen. You can close this window.")
}
