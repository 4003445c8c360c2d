package session

import (
	"fmt"

	"github.com/meszmate/filibuster/internal/core"
	"github.com/meszmate/filibuster/internal/xmpp"
	"github.com/meszmate/filibuster/internal/xmpp/vcard"
)

// Intent handlers: stateless translation of validated user intents
// into outbound stanzas. Precondition failures are returned to the
// caller, never swallowed.

// SendMessage sends a chat message to a contact's main resource.
func (s *Session) SendMessage(key core.Identity, body string) error {
	return s.do(func() error {
		full, err := s.routeTarget(key)
		if err != nil {
			return err
		}
		return s.transport.SendMessage(xmpp.OutboundMessage{To: full, Body: body})
	})
}

// SendComposing notifies a contact's main resource that a message is
// being composed.
func (s *Session) SendComposing(key core.Identity) error {
	return s.do(func() error {
		full, err := s.routeTarget(key)
		if err != nil {
			return err
		}
		return s.transport.SendMessage(xmpp.OutboundMessage{To: full, Composing: true})
	})
}

// routeTarget resolves a contact's full routing address. A contact
// with no online resource fails with ErrContactOffline before any
// stanza is produced.
func (s *Session) routeTarget(key core.Identity) (string, error) {
	if s.state != StateReady {
		return "", ErrNotConnected
	}
	c, ok := s.dir.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownContact, key)
	}
	full := c.MainFullAddress()
	if full == "" {
		return "", fmt.Errorf("%w: %s", ErrContactOffline, c.Address)
	}
	return full, nil
}

// AcceptSubscription authorizes an inbound subscription request and
// asks for the reciprocal subscription, in that order. The directory
// is updated optimistically; authoritative state arrives with the
// next roster push.
func (s *Session) AcceptSubscription(key core.Identity) error {
	return s.do(func() error {
		if s.state != StateReady {
			return ErrNotConnected
		}
		c, ok := s.dir.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownContact, key)
		}
		if err := s.transport.SendPresence(xmpp.OutboundPresence{To: c.Address, Type: "subscribed"}); err != nil {
			return err
		}
		if err := s.transport.SendPresence(xmpp.OutboundPresence{To: c.Address, Type: "subscribe"}); err != nil {
			return err
		}
		return s.dir.AcceptInbound(key)
	})
}

// RejectSubscription declines an inbound subscription request and
// removes the contact.
func (s *Session) RejectSubscription(key core.Identity) error {
	return s.do(func() error {
		if s.state != StateReady {
			return ErrNotConnected
		}
		c, ok := s.dir.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", core.ErrUnknownContact, key)
		}
		if err := s.transport.SendPresence(xmpp.OutboundPresence{To: c.Address, Type: "unsubscribed"}); err != nil {
			return err
		}
		return s.dir.RejectInbound(key)
	})
}

// UpdateOwnProfile publishes the local user's profile card. The
// result is reported asynchronously and does not block the caller;
// on success the local record is updated too.
func (s *Session) UpdateOwnProfile(fullName, nickname string) error {
	return s.do(func() error {
		if s.state != StateReady {
			return ErrNotConnected
		}
		card := vcard.Card{FullName: &fullName, Nickname: &nickname}
		epoch := s.epoch
		s.transport.PublishProfile(card, func(err error) {
			s.post(func() {
				if epoch != s.epoch {
					return
				}
				if err != nil {
					s.log.Warn("profile publish failed: %v", err)
					return
				}
				_ = s.dir.ApplyProfile(core.SelfKey, card.FullName, card.Nickname, nil)
			})
		})
		return nil
	})
}
