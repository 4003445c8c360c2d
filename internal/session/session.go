// Package session implements the connect/roster/presence lifecycle of
// a chat session: one controller owns the contact directory and
// serializes every transport event, user intent and fetch completion
// onto a single processing path.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/meszmate/filibuster/internal/core"
	"github.com/meszmate/filibuster/internal/logging"
	"github.com/meszmate/filibuster/internal/xmpp"
)

// State represents the session lifecycle state.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAwaitingRoster State = "awaiting-roster"
	StateReady          State = "ready"
)

var (
	// ErrNotConnected rejects intents issued outside a ready session.
	ErrNotConnected = errors.New("not connected")
	// ErrContactOffline rejects message intents for contacts with no
	// routable resource. The intent produces no outbound stanza.
	ErrContactOffline = errors.New("contact offline")
)

const (
	defaultRosterTimeout = 10 * time.Second
	defaultFetchDelay    = time.Second
)

// ProfileCache warms contact profiles across sessions. Optional.
type ProfileCache interface {
	GetProfile(address string) (core.Profile, bool, error)
	PutProfile(address string, p core.Profile) error
}

// Options tune the session controller.
type Options struct {
	// RosterTimeout bounds the wait for the initial roster snapshot.
	// When exceeded the session becomes ready in degraded mode
	// instead of hanging.
	RosterTimeout time.Duration
	// FetchDelay is the pause between consecutive profile fetches.
	FetchDelay time.Duration
	Logger     *logging.Logger
	Cache      ProfileCache
}

// Session drives one account's connection lifecycle and owns the
// contact directory. All mutation runs on its internal processing
// goroutine; exported methods post onto it and, where they return a
// result, wait for it.
type Session struct {
	transport xmpp.Transport
	bus       *EventBus
	dir       *core.Directory
	queue     *fetchQueue
	log       *logging.Logger
	cache     ProfileCache

	rosterTimeout time.Duration

	state State
	// epoch increments on every connect attempt and teardown. Deferred
	// completions capture it and drop themselves when stale.
	epoch       int
	rosterTimer *time.Timer

	ops  chan func()
	done chan struct{}
}

// New creates a session over the given transport and starts its
// processing loop.
func New(transport xmpp.Transport, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.RosterTimeout <= 0 {
		opts.RosterTimeout = defaultRosterTimeout
	}
	if opts.FetchDelay <= 0 {
		opts.FetchDelay = defaultFetchDelay
	}

	s := &Session{
		transport:     transport,
		bus:           NewEventBus(),
		dir:           core.NewDirectory(),
		log:           opts.Logger,
		cache:         opts.Cache,
		rosterTimeout: opts.RosterTimeout,
		state:         StateDisconnected,
		ops:           make(chan func(), 128),
		done:          make(chan struct{}),
	}
	s.queue = newFetchQueue(s, opts.FetchDelay)

	s.dir.OnContactChanged(func(k core.Identity) {
		s.bus.Publish(Event{Type: EventContactChanged, Key: k})
	})
	s.dir.OnContactRemoved(func(k core.Identity) {
		s.bus.Publish(Event{Type: EventContactRemoved, Key: k})
	})
	s.dir.OnPresenceChanged(func(k core.Identity) {
		s.bus.Publish(Event{Type: EventPresenceChanged, Key: k})
	})
	s.dir.OnProfileUpdated(s.profileUpdated)
	s.dir.OnNewSubscribed(s.newSubscribed)

	transport.SetHandlers(xmpp.Handlers{
		Status:     func(status xmpp.Status, err error) { s.post(func() { s.transportStatus(status, err) }) },
		Message:    func(m xmpp.Message) { s.post(func() { s.inboundMessage(m) }) },
		Presence:   func(p xmpp.Presence) { s.post(func() { s.inboundPresence(p) }) },
		RosterPush: func(items []xmpp.RosterItem) { s.post(func() { s.rosterPush(items) }) },
	})

	go s.run()
	return s
}

// Events returns the bus the renderer subscribes to.
func (s *Session) Events() *EventBus { return s.bus }

// Close stops the processing loop. The session is unusable afterward.
func (s *Session) Close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Session) run() {
	for {
		select {
		case fn := <-s.ops:
			fn()
		case <-s.done:
			return
		}
	}
}

// post serializes fn onto the processing path. Safe from any
// goroutine; drops the work when the session is closed.
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

// do runs fn on the processing path and waits for its result.
func (s *Session) do(fn func() error) error {
	errc := make(chan error, 1)
	s.post(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrNotConnected
	}
}

// Connect starts the connect/authenticate sequence. Malformed
// addresses are rejected synchronously; transport progress and
// failures arrive as events.
func (s *Session) Connect(address, password string) error {
	if _, err := core.Resolve(address); err != nil {
		return err
	}
	return s.do(func() error {
		if s.state != StateDisconnected {
			return errors.New("already connected")
		}
		s.state = StateConnecting
		s.epoch++
		go func() {
			// Transport failures surface through the status handler.
			_ = s.transport.Connect(context.Background(), xmpp.Credentials{
				Address:  address,
				Password: password,
			})
		}()
		return nil
	})
}

// Disconnect ends the session. Cleanup is immediate; the transport is
// closed in the background.
func (s *Session) Disconnect() {
	_ = s.do(func() error {
		if s.state == StateDisconnected {
			return nil
		}
		s.teardown()
		go func() { _ = s.transport.Disconnect() }()
		return nil
	})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	state := StateDisconnected
	_ = s.do(func() error {
		state = s.state
		return nil
	})
	return state
}

// Contacts returns a snapshot of the directory sorted by address.
func (s *Session) Contacts() []core.Contact {
	var out []core.Contact
	_ = s.do(func() error {
		for _, c := range s.dir.All() {
			out = append(out, snapshotContact(c))
		}
		return nil
	})
	return out
}

// Contact returns a snapshot of one contact.
func (s *Session) Contact(key core.Identity) (core.Contact, bool) {
	var (
		out core.Contact
		ok  bool
	)
	_ = s.do(func() error {
		if c, found := s.dir.Get(key); found {
			out = snapshotContact(c)
			ok = true
		}
		return nil
	})
	return out, ok
}

// Self returns a snapshot of the local user's record.
func (s *Session) Self() (core.Self, bool) {
	var (
		out core.Self
		ok  bool
	)
	_ = s.do(func() error {
		if self := s.dir.Self(); self != nil {
			out = *self
			out.OtherResources = make(map[string]struct{}, len(self.OtherResources))
			for r := range self.OtherResources {
				out.OtherResources[r] = struct{}{}
			}
			ok = true
		}
		return nil
	})
	return out, ok
}

// transportStatus handles connection-status events. Runs on the
// processing path.
func (s *Session) transportStatus(status xmpp.Status, err error) {
	switch status {
	case xmpp.StatusConnected:
		if s.state != StateConnecting {
			s.log.Warn("ignoring connected status in state %s", s.state)
			return
		}
		s.authenticated()
	case xmpp.StatusConnectionFailed:
		s.log.Warn("connection failed: %v", err)
		s.state = StateDisconnected
		s.bus.Publish(Event{
			Type: EventConnectionError,
			Body: "could not reach the chat server",
			Err:  err,
		})
	case xmpp.StatusAuthFailed:
		s.log.Warn("authentication failed: %v", err)
		s.state = StateDisconnected
		s.bus.Publish(Event{
			Type: EventAuthenticationError,
			Body: "the server rejected the address or password",
			Err:  err,
		})
	case xmpp.StatusDisconnected:
		if s.state == StateDisconnected {
			return
		}
		s.teardown()
	}
}

// authenticated runs after the transport reports a bound session: the
// roster must be fetched and applied before anything becomes
// routable.
func (s *Session) authenticated() {
	addr, err := core.Resolve(s.transport.LocalAddress())
	if err != nil {
		s.log.Error("transport reported unusable local address: %v", err)
		s.teardown()
		go func() { _ = s.transport.Disconnect() }()
		return
	}

	s.state = StateAwaitingRoster
	s.dir.SetSelf(core.NewSelf(addr.Bare, addr.Resource))

	epoch := s.epoch
	s.transport.FetchRoster(func(items []xmpp.RosterItem, err error) {
		s.post(func() { s.rosterFetched(epoch, items, err) })
	})
	s.rosterTimer = time.AfterFunc(s.rosterTimeout, func() {
		s.post(func() { s.rosterTimedOut(epoch) })
	})
}

func (s *Session) rosterFetched(epoch int, items []xmpp.RosterItem, err error) {
	if epoch != s.epoch {
		return
	}
	if err != nil {
		s.log.Warn("roster fetch failed: %v", err)
		if s.state == StateAwaitingRoster {
			s.becomeReady(true)
		}
		return
	}
	s.applyRoster(items)
	if s.state == StateAwaitingRoster {
		s.becomeReady(false)
	}
	s.queue.drain()
}

// rosterTimedOut fires when the roster wait exceeds its budget: the
// session becomes ready in degraded mode rather than hanging.
func (s *Session) rosterTimedOut(epoch int) {
	if epoch != s.epoch || s.state != StateAwaitingRoster {
		return
	}
	s.log.Warn("initial roster did not arrive within %s, continuing degraded", s.rosterTimeout)
	s.becomeReady(true)
}

// becomeReady finishes session setup: broadcast initial presence only
// after the roster snapshot was applied (or given up on), then start
// profile fetching.
func (s *Session) becomeReady(degraded bool) {
	if s.rosterTimer != nil {
		s.rosterTimer.Stop()
		s.rosterTimer = nil
	}
	s.state = StateReady

	if err := s.transport.SendPresence(xmpp.OutboundPresence{}); err != nil {
		s.log.Warn("initial presence broadcast failed: %v", err)
	}

	s.bus.Publish(Event{Type: EventConnected, Degraded: degraded})

	s.queue.enqueue(core.SelfKey)
	s.queue.drain()
}

// teardown clears all session state. The directory is memory-resident
// only: subscriptions do not survive a disconnect.
func (s *Session) teardown() {
	s.epoch++
	if s.rosterTimer != nil {
		s.rosterTimer.Stop()
		s.rosterTimer = nil
	}
	s.queue.reset()
	s.dir.Clear()
	s.state = StateDisconnected
	s.bus.Publish(Event{Type: EventDisconnected})
}

// applyRoster applies a roster snapshot or push. Remove entries
// delete; everything else is upserted as subscribed.
func (s *Session) applyRoster(items []xmpp.RosterItem) {
	for _, item := range items {
		sub := core.SubscriptionSubscribed
		if item.Subscription == "remove" {
			sub = core.SubscriptionRemove
		}
		if err := s.dir.UpsertFromRoster(item.Address, item.Name, sub); err != nil {
			s.log.Warn("dropping roster entry %q: %v", item.Address, err)
		}
	}
}

func (s *Session) rosterPush(items []xmpp.RosterItem) {
	if s.state != StateReady {
		s.log.Warn("dropping roster push in state %s", s.state)
		return
	}
	s.applyRoster(items)
	s.queue.drain()
}

// newSubscribed fires when a roster entry creates an already
// subscribed contact: warm its profile from the cache, then queue a
// fresh fetch.
func (s *Session) newSubscribed(key core.Identity) {
	if s.cache != nil {
		if c, ok := s.dir.Get(key); ok {
			if p, found, err := s.cache.GetProfile(c.Address); err != nil {
				s.log.Warn("profile cache read for %s failed: %v", c.Address, err)
			} else if found {
				_ = s.dir.ApplyProfile(key, p.FullName, p.Nickname, p.Avatar)
			}
		}
	}
	s.queue.enqueue(key)
}

// profileUpdated forwards directory profile changes to the bus and
// the cache.
func (s *Session) profileUpdated(key core.Identity) {
	s.bus.Publish(Event{Type: EventProfileUpdated, Key: key})
	if s.cache == nil {
		return
	}
	var (
		address string
		profile core.Profile
	)
	if key == core.SelfKey {
		self := s.dir.Self()
		if self == nil {
			return
		}
		address, profile = self.Address, self.Profile
	} else {
		c, ok := s.dir.Get(key)
		if !ok {
			return
		}
		address, profile = c.Address, c.Profile
	}
	if err := s.cache.PutProfile(address, profile); err != nil {
		s.log.Warn("profile cache write for %s failed: %v", address, err)
	}
}

// inboundPresence merges one presence stanza into the model. Only
// valid in the ready state; earlier presence cannot be attributed to
// a contact yet.
func (s *Session) inboundPresence(p xmpp.Presence) {
	if s.state != StateReady {
		s.log.Warn("dropping presence from %q in state %s", p.From, s.state)
		return
	}
	addr, err := core.Resolve(p.From)
	if err != nil {
		s.log.Warn("dropping presence with bad sender: %v", err)
		return
	}

	self := s.dir.Self()
	if self != nil && addr.Bare == self.Address {
		s.selfPresence(p, addr)
		return
	}

	switch p.Type {
	case "subscribe":
		if err := s.dir.ApplyInboundSubscription(addr.Bare); err != nil {
			s.log.Warn("dropping subscription request from %q: %v", p.From, err)
		}
	case "error":
		// Not attributable to a resource; nothing to update.
	case "unavailable":
		if err := s.dir.RemoveResourcePresence(addr.Key, addr.Resource); err != nil {
			s.log.Warn("dropping unavailable presence from %q: %v", p.From, err)
		}
	case "":
		err := s.dir.ApplyResourcePresence(addr.Key, addr.Resource, p.From, core.Show(p.Show), p.Status)
		if err != nil {
			s.log.Warn("dropping presence from %q: %v", p.From, err)
		}
	default:
		s.log.Debug("ignoring presence type %q from %q", p.Type, p.From)
	}
}

// selfPresence tracks other devices logged in under our own bare
// address.
func (s *Session) selfPresence(p xmpp.Presence, addr core.Address) {
	self := s.dir.Self()
	if p.Type == "error" {
		s.log.Warn("server rejected our presence: from=%q status=%q", p.From, p.Status)
		return
	}
	if addr.Resource == self.Resource {
		// Our own broadcast echoed back.
		return
	}
	if p.Type == "unavailable" {
		self.RemoveResource(p.From)
	} else if p.Type == "" {
		self.AddResource(p.From)
	}
	s.bus.Publish(Event{Type: EventPresenceChanged, Key: core.SelfKey})
}

// inboundMessage emits received-text and composing notifications.
// Both may fire from the same stanza.
func (s *Session) inboundMessage(m xmpp.Message) {
	if s.state != StateReady {
		s.log.Warn("dropping message from %q in state %s", m.From, s.state)
		return
	}
	addr, err := core.Resolve(m.From)
	if err != nil {
		s.log.Warn("dropping message with bad sender: %v", err)
		return
	}
	if m.HasBody {
		s.bus.Publish(Event{Type: EventMessageReceived, Key: addr.Key, Body: m.Body})
	}
	if m.Composing {
		s.bus.Publish(Event{Type: EventComposingReceived, Key: addr.Key})
	}
}

func snapshotContact(c *core.Contact) core.Contact {
	out := *c
	out.Presence = make(map[string]core.ResourcePresence, len(c.Presence))
	for r, p := range c.Presence {
		out.Presence[r] = p
	}
	return out
}
