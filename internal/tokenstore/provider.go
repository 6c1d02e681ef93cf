package tokenstore

import (
	"github.com/charmbracelet/log"
)

// Provider adapts a [Store] to the token source upstream requests use.
//
// Store failures degrade to guest access instead of failing the request:
// a broken session file must never take playback down, it only loses the
// ability to authenticate.
type Provider struct {
	store  *Store
	logger *log.Logger
}

// NewProvider creates a Provider over store. The logger receives a warning
// each time a session read fails.
func NewProvider(store *Store, logger *log.Logger) *Provider {
	return &Provider{store: store, logger: logger}
}

// Token returns the current access token, or empty for guest access.
func (p *Provider) Token() (string, error) {
	session, err := p.store.Read()
	if err != nil {
		p.logger.Warn("session read failed, continuing as guest", "error", err)
		return "", nil
	}
	return session.AccessToken(), nil
}
