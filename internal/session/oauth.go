package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/errs"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// ConsentFunc shows authURL to the user and blocks until the provider
// redirects back with the authorization code for state.
type ConsentFunc func(ctx context.Context, authURL, state string) (code string, err error)

// OAuthProvider issues credentials with the OAuth 2.0 authorization code flow.
// Interactive requests go through consent; silent ones use the refresh token
// of the last exchange.
type OAuthProvider struct {
	cfg          *oauth2.Config
	discoveryURL string
	consent      ConsentFunc
	client       *resty.Client
	logger       *zap.Logger

	mu      sync.Mutex
	current *oauth2.Token
}

var _ Provider = (*OAuthProvider)(nil)

// NewOAuthProvider creates a provider from the google configuration section.
func NewOAuthProvider(cfg *config.Google, consent ConsentFunc, logger *zap.Logger) *OAuthProvider {
	return &OAuthProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		discoveryURL: cfg.DiscoveryURL,
		consent:      consent,
		client:       resty.New(),
		logger:       logger.Named("oauth"),
	}
}

type discoveryDocument struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
}

// Load checks the client configuration and resolves the provider endpoints
// from its discovery document. The configured endpoints are kept when no
// discovery URL is set.
func (p *OAuthProvider) Load(ctx context.Context) error {
	if p.cfg.ClientID == "" {
		return errors.New("oauth client id is not configured")
	}
	if p.discoveryURL == "" {
		return nil
	}

	var doc discoveryDocument
	resp, err := p.client.R().SetContext(ctx).SetResult(&doc).Get(p.discoveryURL)
	if err != nil {
		return fmt.Errorf("%w: fetch discovery document: %v", errs.ErrRemoteUnavailable, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: discovery document: %s", errs.ErrRemoteUnavailable, resp.Status())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if doc.AuthorizationEndpoint != "" {
		p.cfg.Endpoint.AuthURL = doc.AuthorizationEndpoint
	}
	if doc.TokenEndpoint != "" {
		p.cfg.Endpoint.TokenURL = doc.TokenEndpoint
	}
	p.logger.Debug("Resolved oauth endpoints",
		zap.String("auth_url", p.cfg.Endpoint.AuthURL),
		zap.String("token_url", p.cfg.Endpoint.TokenURL),
	)
	return nil
}

// RequestToken implements Provider.
func (p *OAuthProvider) RequestToken(ctx context.Context, silent bool) (string, error) {
	if silent {
		return p.refresh(ctx)
	}
	return p.authorize(ctx)
}

func (p *OAuthProvider) refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.current
	cfg := *p.cfg
	p.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token, consent required", errs.ErrAuthDenied)
	}

	// Only the refresh token is passed so the source always goes to the provider.
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		return "", classifyTokenError(err)
	}

	p.mu.Lock()
	p.current = tok
	p.mu.Unlock()
	return tok.AccessToken, nil
}

func (p *OAuthProvider) authorize(ctx context.Context) (string, error) {
	if p.consent == nil {
		return "", fmt.Errorf("%w: no consent handler", errs.ErrAuthDenied)
	}

	p.mu.Lock()
	cfg := *p.cfg
	p.mu.Unlock()

	state := uuid.NewString()
	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	code, err := p.consent(ctx, authURL, state)
	if err != nil {
		if errors.Is(err, errs.ErrAuthDenied) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", errs.ErrAuthDenied, err)
	}
	if code == "" {
		return "", fmt.Errorf("%w: empty authorization code", errs.ErrAuthDenied)
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", classifyTokenError(err)
	}

	p.mu.Lock()
	p.current = tok
	p.mu.Unlock()
	p.logger.Info("Authorization code exchanged", zap.Bool("refreshable", tok.RefreshToken != ""))
	return tok.AccessToken, nil
}

// classifyTokenError maps token endpoint failures onto the errs taxonomy:
// rejected grants are denials, anything else is the provider being unavailable.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "access_denied" || re.ErrorCode == "invalid_client" {
			return fmt.Errorf("%w: %s", errs.ErrAuthDenied, re.ErrorCode)
		}
		if re.Response != nil && (re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized) {
			return fmt.Errorf("%w: token endpoint status %d", errs.ErrAuthDenied, re.Response.StatusCode)
		}
		return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: %v", errs.ErrRemoteUnavailable, err)
}
