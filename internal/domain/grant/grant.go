package grant

import (
	"fmt"
	"time"
)

// MaxAgentLength bounds agent identities.
const MaxAgentLength = 256

// Grant links an agent identity to a list it may query.
type Grant struct {
	agent     string
	listID    string
	createdAt time.Time
}

// New validates and creates a Grant.
func New(agent, listID string) (Grant, error) {
	if agent == "" {
		return Grant{}, fmt.Errorf("agent identity is required")
	}
	if len(agent) > MaxAgentLength {
		return Grant{}, fmt.Errorf("agent identity too long (max %d)", MaxAgentLength)
	}
	if listID == "" {
		return Grant{}, fmt.Errorf("list id is required")
	}
	return Grant{agent: agent, listID: listID, createdAt: time.Now().UTC()}, nil
}

// Agent returns the agent identity.
func (g Grant) Agent() string { return g.agent }

// ListID returns the granted list.
func (g Grant) ListID() string { return g.listID }

// CreatedAt returns the grant time.
func (g Grant) CreatedAt() time.Time { return g.createdAt }
