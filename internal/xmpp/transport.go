// Package xmpp defines the transport boundary of the engine: the
// abstract bidirectional stanza channel the session controller drives,
// plus the wire-neutral stanza views it delivers. The Mellium-backed
// implementation lives in client.go; tests substitute fakes.
package xmpp

import (
	"context"

	"github.com/meszmate/filibuster/internal/xmpp/vcard"
)

// Status is a connection-status event reported by the transport.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
	StatusConnectionFailed
	StatusAuthFailed
)

// String returns a short name for logging.
func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusConnectionFailed:
		return "connection-failed"
	case StatusAuthFailed:
		return "auth-failed"
	default:
		return "unknown"
	}
}

// Credentials identify the account a session logs in with.
type Credentials struct {
	Address  string
	Password string
}

// Message is an inbound message stanza, reduced to what the engine
// consumes. Body and Composing may both be set on one stanza.
type Message struct {
	From      string
	Type      string
	Body      string
	HasBody   bool
	Composing bool
}

// Presence is an inbound presence stanza.
type Presence struct {
	From   string
	Type   string // "", unavailable, subscribe, subscribed, unsubscribed, error
	Show   string
	Status string
}

// RosterItem is one entry of a roster result or push.
type RosterItem struct {
	Address      string
	Name         string
	Subscription string // wire value: none, to, from, both, remove
}

// OutboundMessage is a chat message or chat-state notice to send. A
// message with a body always carries an active chat-state marker;
// Composing sends a bare composing notice instead.
type OutboundMessage struct {
	To        string
	Body      string
	Composing bool
}

// OutboundPresence is a presence stanza to send. An empty To
// broadcasts; Type selects subscription handshakes.
type OutboundPresence struct {
	To   string
	Type string // "", subscribed, subscribe, unsubscribed
}

// Handlers receives inbound traffic and connection-status events.
// Callbacks are invoked from the transport's read loop; the session
// serializes them onto its own processing path. Nil fields are
// skipped.
type Handlers struct {
	Status     func(status Status, err error)
	Message    func(m Message)
	Presence   func(p Presence)
	RosterPush func(items []RosterItem)
}

// Transport is the abstract stanza channel consumed by the session
// controller. Implementations own authentication, TLS and the wire
// encoding; the engine only sequences stanzas through it.
type Transport interface {
	// Connect dials and authenticates. Progress and failures are
	// delivered through the Status handler; the returned error covers
	// only immediate setup problems.
	Connect(ctx context.Context, creds Credentials) error
	// Disconnect sends unavailable presence and closes the stream.
	Disconnect() error
	// LocalAddress returns the full address bound for this session,
	// empty before Connect succeeds.
	LocalAddress() string

	SetHandlers(h Handlers)

	SendMessage(m OutboundMessage) error
	SendPresence(p OutboundPresence) error

	// FetchRoster requests the roster snapshot; the completion fires
	// asynchronously with the result or a timeout error.
	FetchRoster(fn func(items []RosterItem, err error))
	// FetchProfile requests the profile card of a bare address.
	FetchProfile(address string, fn func(card vcard.Card, err error))
	// PublishProfile stores the local user's own profile card.
	PublishProfile(card vcard.Card, fn func(err error))
}
