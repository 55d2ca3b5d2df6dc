package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/veritasvoid/TradeZen/internal/errs"
)

type consentResult struct {
	code string
	err  error
}

type consentRequest struct {
	state   string
	authURL string
	result  chan consentResult
}

// ConsentBroker connects an interactive sign-in waiting for consent with the
// redirect the provider sends back. Only the latest request is pending; a new
// one supersedes it.
type ConsentBroker struct {
	mu      sync.Mutex
	pending *consentRequest
	prompts chan string
}

// NewConsentBroker creates an idle broker.
func NewConsentBroker() *ConsentBroker {
	return &ConsentBroker{prompts: make(chan string, 1)}
}

// Consent is a ConsentFunc. It publishes authURL on Prompts and waits for Resolve.
func (b *ConsentBroker) Consent(ctx context.Context, authURL, state string) (string, error) {
	req := &consentRequest{state: state, authURL: authURL, result: make(chan consentResult, 1)}

	b.mu.Lock()
	if b.pending != nil {
		b.pending.result <- consentResult{err: fmt.Errorf("%w: superseded by a new sign-in", errs.ErrAuthDenied)}
	}
	b.pending = req
	// Drop an unread prompt of a superseded request.
	select {
	case <-b.prompts:
	default:
	}
	b.prompts <- authURL
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if b.pending == req {
			b.pending = nil
		}
		b.mu.Unlock()
	}()

	select {
	case r := <-req.result:
		return r.code, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prompts delivers the consent URL of each new request.
func (b *ConsentBroker) Prompts() <-chan string {
	return b.prompts
}

// PendingURL returns the consent URL of the request waiting for the user.
func (b *ConsentBroker) PendingURL() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending == nil {
		return "", false
	}
	return b.pending.authURL, true
}

// Resolve completes the pending request with the redirect parameters. A
// non-empty providerErr means the user refused consent.
func (b *ConsentBroker) Resolve(state, code, providerErr string) error {
	b.mu.Lock()
	req := b.pending
	if req == nil || req.state != state {
		b.mu.Unlock()
		return fmt.Errorf("%w: no sign-in waiting for this state", errs.ErrNotFound)
	}
	b.pending = nil
	b.mu.Unlock()

	if providerErr != "" {
		req.result <- consentResult{err: fmt.Errorf("%w: %s", errs.ErrAuthDenied, providerErr)}
		return nil
	}
	req.result <- consentResult{code: code}
	return nil
}
