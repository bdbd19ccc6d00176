package catalog

import (
	"context"
	"sync"

	"golang.org/x/oauth2"
)

// tokenSource caches a short-lived bearer credential, replacing it wholesale
// once expired. The refresh path is mutex-guarded so that at most one exchange
// is in flight per expiry window: concurrent resolve calls arriving past
// expiry block on the first caller's exchange and reuse its result.
type tokenSource struct {
	mu    sync.Mutex
	token *oauth2.Token
	fetch func(ctx context.Context) (*oauth2.Token, error)
}

// bearer returns a valid access token, performing the provider's credential
// exchange when none is held or the held one has expired.
func (ts *tokenSource) bearer(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token.Valid() {
		return ts.token.AccessToken, nil
	}

	token, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}
	ts.token = token

	return token.AccessToken, nil
}
