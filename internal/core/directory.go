package core

import (
	"fmt"
	"sort"
)

// ErrUnknownContact is returned when a presence or profile update
// targets a key the directory does not hold. Callers recover by
// dropping the offending event; it must never take the session down.
var ErrUnknownContact = fmt.Errorf("unknown contact")

// Directory owns the mapping from local key to contact record. It is
// the single source of truth for roster, subscription, presence and
// profile data. It is not safe for concurrent use: all mutation is
// serialized on the session's event-processing path.
type Directory struct {
	self     *Self
	contacts map[Identity]*Contact

	// Notification hooks, wired by the session. Nil hooks are skipped.
	onChanged       func(Identity)
	onRemoved       func(Identity)
	onPresence      func(Identity)
	onProfile       func(Identity)
	onNewSubscribed func(Identity)
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{contacts: make(map[Identity]*Contact)}
}

// SetSelf installs the local user's record for the current session.
func (d *Directory) SetSelf(self *Self) { d.self = self }

// Self returns the local user's record, nil outside a session.
func (d *Directory) Self() *Self { return d.self }

// OnContactChanged registers the hook fired when a contact is created
// or updated.
func (d *Directory) OnContactChanged(fn func(Identity)) { d.onChanged = fn }

// OnContactRemoved registers the hook fired when a contact is deleted.
func (d *Directory) OnContactRemoved(fn func(Identity)) { d.onRemoved = fn }

// OnPresenceChanged registers the hook fired when a contact's presence
// changes.
func (d *Directory) OnPresenceChanged(fn func(Identity)) { d.onPresence = fn }

// OnProfileUpdated registers the hook fired when profile data is
// applied. SelfKey marks the local user's own profile.
func (d *Directory) OnProfileUpdated(fn func(Identity)) { d.onProfile = fn }

// OnNewSubscribed registers the hook fired when a roster entry creates
// a contact that is already subscribed, so its profile card can be
// queued for fetching.
func (d *Directory) OnNewSubscribed(fn func(Identity)) { d.onNewSubscribed = fn }

// Get returns the contact for a key.
func (d *Directory) Get(key Identity) (*Contact, bool) {
	c, ok := d.contacts[key]
	return c, ok
}

// Len returns the number of contacts held.
func (d *Directory) Len() int { return len(d.contacts) }

// All returns the contacts sorted by address for stable rendering.
func (d *Directory) All() []*Contact {
	out := make([]*Contact, 0, len(d.contacts))
	for _, c := range d.contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// UpsertFromRoster applies one roster entry. A remove subscription
// deletes the contact (idempotent on a missing key); anything else
// creates the contact or updates its name and subscription state.
// Newly created subscribed contacts are reported through the
// new-subscribed hook.
func (d *Directory) UpsertFromRoster(address, name string, sub Subscription) error {
	addr, err := Resolve(address)
	if err != nil {
		return err
	}

	if sub == SubscriptionRemove {
		if _, ok := d.contacts[addr.Key]; !ok {
			return nil
		}
		delete(d.contacts, addr.Key)
		if d.onRemoved != nil {
			d.onRemoved(addr.Key)
		}
		return nil
	}

	c, ok := d.contacts[addr.Key]
	if !ok {
		if name == "" {
			name = addr.Bare
		}
		c = newContact(addr.Key, addr.Bare, name, sub)
		d.contacts[addr.Key] = c
		if sub == SubscriptionSubscribed && d.onNewSubscribed != nil {
			d.onNewSubscribed(addr.Key)
		}
	} else {
		if name != "" {
			c.DisplayName = name
		}
		c.Subscription = sub
	}
	if d.onChanged != nil {
		d.onChanged(addr.Key)
	}
	return nil
}

// ApplyInboundSubscription records an inbound subscription request
// from an address, creating the contact if needed.
func (d *Directory) ApplyInboundSubscription(address string) error {
	addr, err := Resolve(address)
	if err != nil {
		return err
	}
	c, ok := d.contacts[addr.Key]
	if !ok {
		c = newContact(addr.Key, addr.Bare, addr.Bare, SubscriptionInboundRequest)
		d.contacts[addr.Key] = c
	} else {
		c.Subscription = SubscriptionInboundRequest
	}
	if d.onChanged != nil {
		d.onChanged(addr.Key)
	}
	return nil
}

// AcceptInbound optimistically marks an inbound request as subscribed.
// Authoritative state still arrives via the next roster push.
func (d *Directory) AcceptInbound(key Identity) error {
	c, ok := d.contacts[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	c.Subscription = SubscriptionSubscribed
	if d.onChanged != nil {
		d.onChanged(key)
	}
	return nil
}

// RejectInbound removes a contact whose inbound request was declined.
func (d *Directory) RejectInbound(key Identity) error {
	if _, ok := d.contacts[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	delete(d.contacts, key)
	if d.onRemoved != nil {
		d.onRemoved(key)
	}
	return nil
}

// ApplyResourcePresence routes a resource presence update to the
// contact's aggregator.
func (d *Directory) ApplyResourcePresence(key Identity, resource, fullAddress string, show Show, status string) error {
	c, ok := d.contacts[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	c.ApplyResourcePresence(resource, fullAddress, show, status)
	if d.onPresence != nil {
		d.onPresence(key)
	}
	return nil
}

// RemoveResourcePresence drops one resource's presence. The presence
// hook fires only when the contact's main resource was reset.
func (d *Directory) RemoveResourcePresence(key Identity, resource string) error {
	c, ok := d.contacts[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	if c.RemoveResourcePresence(resource) && d.onPresence != nil {
		d.onPresence(key)
	}
	return nil
}

// ApplyProfile merges fetched profile-card fields into a contact, or
// into the self record when key is SelfKey. Nil fields are
// unspecified and never overwrite stored values.
func (d *Directory) ApplyProfile(key Identity, fullName, nickname, avatar *string) error {
	if key == SelfKey {
		if d.self == nil {
			return fmt.Errorf("%w: no self record", ErrUnknownContact)
		}
		d.self.applyProfile(fullName, nickname, avatar)
		if d.onProfile != nil {
			d.onProfile(SelfKey)
		}
		return nil
	}

	c, ok := d.contacts[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownContact, key)
	}
	nameChanged := c.applyProfile(fullName, nickname, avatar)
	if d.onProfile != nil {
		d.onProfile(key)
	}
	if nameChanged && d.onChanged != nil {
		d.onChanged(key)
	}
	return nil
}

// Clear drops all contacts and the self record. Used on disconnect:
// session state is memory-resident only.
func (d *Directory) Clear() {
	d.contacts = make(map[Identity]*Contact)
	d.self = nil
}
