package xmpp

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"mellium.im/sasl"
	"mellium.im/xmpp"
	"mellium.im/xmpp/jid"

	"github.com/meszmate/filibuster/internal/logging"
	"github.com/meszmate/filibuster/internal/xmpp/vcard"
)

const (
	defaultPort = 5222
	dialTimeout = 30 * time.Second
	iqTimeout   = 30 * time.Second
)

// ClientOptions configures the Mellium-backed transport.
type ClientOptions struct {
	// Server overrides the connect host; defaults to the JID domain.
	Server string
	Port   int
	// Resource requests a specific resource at bind time.
	Resource string
	Logger   *logging.Logger
}

// Client is the Transport implementation over a Mellium XMPP session.
type Client struct {
	opts ClientOptions
	log  *logging.Logger

	mu        sync.Mutex
	session   *xmpp.Session
	local     jid.JID
	connected bool
	pending   map[string]func(iq iqStanza, err error)
	ctx       context.Context
	cancel    context.CancelFunc

	handlers Handlers
}

var _ Transport = (*Client)(nil)

// NewClient creates an unconnected client.
func NewClient(opts ClientOptions) *Client {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	return &Client{
		opts:    opts,
		log:     log,
		pending: make(map[string]func(iq iqStanza, err error)),
	}
}

// SetHandlers installs the inbound callbacks. Must be called before
// Connect.
func (c *Client) SetHandlers(h Handlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

// Connect dials the server, negotiates TLS, authenticates and binds a
// resource. Connection and authentication failures are reported
// through the Status handler as distinct kinds.
func (c *Client) Connect(ctx context.Context, creds Credentials) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	j, err := jid.Parse(creds.Address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	if c.opts.Resource != "" {
		j, err = j.WithResource(c.opts.Resource)
		if err != nil {
			return fmt.Errorf("invalid resource: %w", err)
		}
	}

	server := c.opts.Server
	if server == "" {
		server = j.Domain().String()
	}
	addr := fmt.Sprintf("%s:%d", server, c.opts.Port)

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		err = fmt.Errorf("failed to dial server: %w", err)
		c.emitStatus(StatusConnectionFailed, err)
		return err
	}

	tlsConfig := &tls.Config{
		ServerName: j.Domain().String(),
		MinVersion: tls.VersionTLS12,
	}

	negotiator := xmpp.NewNegotiator(func(_ *xmpp.Session, _ *xmpp.StreamConfig) xmpp.StreamConfig {
		return xmpp.StreamConfig{
			Features: []xmpp.StreamFeature{
				xmpp.StartTLS(tlsConfig),
				xmpp.SASL("", creds.Password, sasl.ScramSha256Plus, sasl.ScramSha256, sasl.ScramSha1Plus, sasl.ScramSha1, sasl.Plain),
				xmpp.BindResource(),
			},
		}
	})

	session, err := xmpp.NewSession(ctx, j.Domain(), j, conn, 0, negotiator)
	if err != nil {
		conn.Close()
		err = fmt.Errorf("failed to negotiate session: %w", err)
		if isAuthFailure(err) {
			c.emitStatus(StatusAuthFailed, err)
		} else {
			c.emitStatus(StatusConnectionFailed, err)
		}
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.session = session
	c.local = session.LocalAddr()
	c.connected = true
	c.ctx = runCtx
	c.cancel = cancel
	c.mu.Unlock()

	c.log.Info("session bound as %s", c.local)
	c.emitStatus(StatusConnected, nil)

	go c.readLoop(session)

	return nil
}

// Disconnect sends unavailable presence and closes the stream.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	session := c.session
	ctx := c.ctx
	cancel := c.cancel
	c.connected = false
	c.session = nil
	c.failPendingLocked(fmt.Errorf("disconnected"))
	c.mu.Unlock()

	_ = session.Encode(ctx, presenceStanza{Type: "unavailable"})
	err := session.Close()
	cancel()
	c.emitStatus(StatusDisconnected, nil)
	return err
}

// LocalAddress returns the full address bound for this session.
func (c *Client) LocalAddress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.local.Equal(jid.JID{}) {
		return ""
	}
	return c.local.String()
}

// SendMessage sends a chat message with an active chat-state marker,
// or a bare composing notice when Composing is set.
func (c *Client) SendMessage(m OutboundMessage) error {
	session, ctx, err := c.liveSession()
	if err != nil {
		return err
	}
	st := messageStanza{To: m.To, Type: "chat"}
	if m.Composing {
		st.Composing = &chatStateMarker{}
	} else {
		st.Body = &m.Body
		st.Active = &chatStateMarker{}
	}
	return session.Encode(ctx, st)
}

// SendPresence sends a presence stanza.
func (c *Client) SendPresence(p OutboundPresence) error {
	session, ctx, err := c.liveSession()
	if err != nil {
		return err
	}
	return session.Encode(ctx, presenceStanza{To: p.To, Type: p.Type})
}

// FetchRoster requests the roster snapshot.
func (c *Client) FetchRoster(fn func(items []RosterItem, err error)) {
	c.sendIQ(iqStanza{Type: "get", Roster: &rosterQueryPayload{}}, func(result iqStanza, err error) {
		if err != nil {
			fn(nil, err)
			return
		}
		if result.Roster == nil {
			fn(nil, nil)
			return
		}
		fn(rosterItems(result.Roster.Items), nil)
	})
}

// FetchProfile requests the profile card of a bare address. An empty
// address fetches the local user's own card.
func (c *Client) FetchProfile(address string, fn func(card vcard.Card, err error)) {
	c.sendIQ(iqStanza{Type: "get", To: address, VCard: &vcard.Payload{}}, func(result iqStanza, err error) {
		if err != nil {
			fn(vcard.Card{}, err)
			return
		}
		fn(vcard.Decode(result.VCard), nil)
	})
}

// PublishProfile stores the local user's own profile card.
func (c *Client) PublishProfile(card vcard.Card, fn func(err error)) {
	c.sendIQ(iqStanza{Type: "set", VCard: vcard.Encode(card)}, func(_ iqStanza, err error) {
		fn(err)
	})
}

func (c *Client) liveSession() (*xmpp.Session, context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected || c.session == nil {
		return nil, nil, fmt.Errorf("not connected")
	}
	return c.session, c.ctx, nil
}

// sendIQ issues an IQ round-trip: the completion fires with the
// matching result stanza, a timeout, or the disconnect error.
func (c *Client) sendIQ(iq iqStanza, fn func(result iqStanza, err error)) {
	session, ctx, err := c.liveSession()
	if err != nil {
		fn(iqStanza{}, err)
		return
	}

	iq.ID = generateID()

	timer := time.AfterFunc(iqTimeout, func() {
		c.mu.Lock()
		pending, ok := c.pending[iq.ID]
		delete(c.pending, iq.ID)
		c.mu.Unlock()
		if ok {
			pending(iqStanza{}, fmt.Errorf("iq %s timed out", iq.ID))
		}
	})

	c.mu.Lock()
	c.pending[iq.ID] = func(result iqStanza, err error) {
		timer.Stop()
		fn(result, err)
	}
	c.mu.Unlock()

	if err := session.Encode(ctx, iq); err != nil {
		timer.Stop()
		c.mu.Lock()
		delete(c.pending, iq.ID)
		c.mu.Unlock()
		fn(iqStanza{}, err)
	}
}

// readLoop decodes inbound stanzas and dispatches them to the
// registered handlers until the stream ends.
func (c *Client) readLoop(session *xmpp.Session) {
	decoder := xml.NewTokenDecoder(session.TokenReader())
	for {
		tok, err := decoder.Token()
		if err != nil {
			c.streamEnded(err)
			return
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "message":
			var st messageStanza
			if err := decoder.DecodeElement(&st, &start); err != nil {
				c.log.Warn("dropping undecodable message stanza: %v", err)
				continue
			}
			c.dispatchMessage(st)
		case "presence":
			var st presenceStanza
			if err := decoder.DecodeElement(&st, &start); err != nil {
				c.log.Warn("dropping undecodable presence stanza: %v", err)
				continue
			}
			c.dispatchPresence(st)
		case "iq":
			var st iqStanza
			if err := decoder.DecodeElement(&st, &start); err != nil {
				c.log.Warn("dropping undecodable iq stanza: %v", err)
				continue
			}
			c.dispatchIQ(st)
		default:
			if err := decoder.Skip(); err != nil {
				c.streamEnded(err)
				return
			}
		}
	}
}

func (c *Client) dispatchMessage(st messageStanza) {
	c.mu.Lock()
	fn := c.handlers.Message
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.log.Debug("message from %s", st.From)
	m := Message{
		From:      st.From,
		Type:      st.Type,
		Composing: st.Composing != nil,
	}
	if st.Body != nil {
		m.Body = *st.Body
		m.HasBody = true
	}
	fn(m)
}

func (c *Client) dispatchPresence(st presenceStanza) {
	c.mu.Lock()
	fn := c.handlers.Presence
	c.mu.Unlock()
	if fn == nil {
		return
	}
	c.log.Debug("presence from %s type=%q show=%q", st.From, st.Type, st.Show)
	fn(Presence{
		From:   st.From,
		Type:   st.Type,
		Show:   st.Show,
		Status: st.Status,
	})
}

func (c *Client) dispatchIQ(st iqStanza) {
	switch st.Type {
	case "result", "error":
		c.mu.Lock()
		pending, ok := c.pending[st.ID]
		delete(c.pending, st.ID)
		c.mu.Unlock()
		if !ok {
			c.log.Debug("unsolicited iq %s of type %s", st.ID, st.Type)
			return
		}
		if st.Type == "error" {
			pending(st, fmt.Errorf("iq %s failed", st.ID))
			return
		}
		pending(st, nil)
	case "set":
		if st.Roster == nil {
			return
		}
		c.mu.Lock()
		fn := c.handlers.RosterPush
		c.mu.Unlock()
		if fn != nil {
			fn(rosterItems(st.Roster.Items))
		}
	}
}

func (c *Client) streamEnded(err error) {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.session = nil
	c.failPendingLocked(fmt.Errorf("stream closed"))
	c.mu.Unlock()

	if !wasConnected {
		return
	}
	if err != nil && err != io.EOF {
		c.log.Warn("stream ended: %v", err)
	}
	c.emitStatus(StatusDisconnected, err)
}

func (c *Client) failPendingLocked(err error) {
	for id, fn := range c.pending {
		delete(c.pending, id)
		go fn(iqStanza{}, err)
	}
}

func (c *Client) emitStatus(status Status, err error) {
	c.mu.Lock()
	fn := c.handlers.Status
	c.mu.Unlock()
	if fn != nil {
		fn(status, err)
	}
}

func rosterItems(items []rosterItemXML) []RosterItem {
	out := make([]RosterItem, 0, len(items))
	for _, it := range items {
		out = append(out, RosterItem{
			Address:      it.Address,
			Name:         it.Name,
			Subscription: it.Subscription,
		})
	}
	return out
}

// isAuthFailure distinguishes a SASL rejection from transport-level
// failures so the two surface as distinct session notifications. The
// negotiator does not expose a typed error for this.
func isAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sasl") ||
		strings.Contains(msg, "not-authorized") ||
		strings.Contains(msg, "credentials")
}

func generateID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// Wire forms. Inbound matching is by local name and namespace-
// qualified children where it matters.

type chatStateMarker struct{}

type messageStanza struct {
	XMLName   xml.Name         `xml:"message"`
	From      string           `xml:"from,attr,omitempty"`
	To        string           `xml:"to,attr,omitempty"`
	Type      string           `xml:"type,attr,omitempty"`
	ID        string           `xml:"id,attr,omitempty"`
	Body      *string          `xml:"body"`
	Active    *chatStateMarker `xml:"http://jabber.org/protocol/chatstates active"`
	Composing *chatStateMarker `xml:"http://jabber.org/protocol/chatstates composing"`
}

type presenceStanza struct {
	XMLName xml.Name `xml:"presence"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
	Type    string   `xml:"type,attr,omitempty"`
	Show    string   `xml:"show,omitempty"`
	Status  string   `xml:"status,omitempty"`
}

type iqStanza struct {
	XMLName xml.Name            `xml:"iq"`
	From    string              `xml:"from,attr,omitempty"`
	To      string              `xml:"to,attr,omitempty"`
	Type    string              `xml:"type,attr,omitempty"`
	ID      string              `xml:"id,attr,omitempty"`
	Roster  *rosterQueryPayload `xml:"jabber:iq:roster query"`
	VCard   *vcard.Payload      `xml:"vcard-temp vCard"`
}

type rosterQueryPayload struct {
	XMLName xml.Name        `xml:"jabber:iq:roster query"`
	Items   []rosterItemXML `xml:"item"`
}

type rosterItemXML struct {
	Address      string `xml:"jid,attr"`
	Name         string `xml:"name,attr,omitempty"`
	Subscription string `xml:"subscription,attr,omitempty"`
}
