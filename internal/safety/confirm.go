package safety

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// TokenTTL is how long a confirmation token stays valid.
const TokenTTL = 5 * time.Minute

type pending struct {
	tool     string
	resource string
	issued   time.Time
}

// ConfirmationTracker issues single-use tokens that gate disruptive tools.
// A token is bound to the tool and resource it was issued for, so a token
// requested for a quick test cannot start a test until the battery is flat.
type ConfirmationTracker struct {
	gated map[string]struct{}
	now   func() time.Time

	mu     sync.Mutex
	tokens map[string]pending
}

// NewConfirmationTracker gates the named tools. Nil or empty gates nothing.
func NewConfirmationTracker(gatedTools []string) *ConfirmationTracker {
	ct := &ConfirmationTracker{
		gated:  make(map[string]struct{}, len(gatedTools)),
		now:    time.Now,
		tokens: make(map[string]pending),
	}
	for _, tool := range gatedTools {
		ct.gated[tool] = struct{}{}
	}
	return ct
}

// NeedsConfirmation reports whether tool is gated.
func (ct *ConfirmationTracker) NeedsConfirmation(tool string) bool {
	_, ok := ct.gated[tool]
	return ok
}

// RequestConfirmation issues a token for running tool against resource.
func (ct *ConfirmationTracker) RequestConfirmation(tool, resource string) string {
	token := newToken()

	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.sweep()
	ct.tokens[token] = pending{tool: tool, resource: resource, issued: ct.now()}
	return token
}

// Confirm consumes token. It reports true only if the token exists, has not
// expired, and was issued for the same tool and resource. Any presented
// token is burned, matching or not.
func (ct *ConfirmationTracker) Confirm(token, tool, resource string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	p, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(p.issued) > TokenTTL {
		return false
	}
	return p.tool == tool && p.resource == resource
}

// Pending returns the number of outstanding, unexpired tokens.
func (ct *ConfirmationTracker) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.sweep()
	return len(ct.tokens)
}

// sweep drops expired tokens. Caller holds ct.mu.
func (ct *ConfirmationTracker) sweep() {
	now := ct.now()
	for token, p := range ct.tokens {
		if now.Sub(p.issued) > TokenTTL {
			delete(ct.tokens, token)
		}
	}
}

func newToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic("safety: reading random token: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}
