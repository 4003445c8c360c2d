package core

// Subscription represents the subscription state of a contact.
type Subscription string

const (
	SubscriptionNone            Subscription = "none"
	SubscriptionOutboundRequest Subscription = "outbound-request"
	SubscriptionInboundRequest  Subscription = "inbound-request"
	SubscriptionSubscribed      Subscription = "subscribed"
	// SubscriptionRemove is a transition, not a resting state: applying
	// it deletes the contact.
	SubscriptionRemove Subscription = "remove"
)

// Profile holds profile-card data. A nil field means "not yet
// fetched"; a pointer to the empty string means "fetched, empty".
type Profile struct {
	FullName *string
	Nickname *string
	Avatar   *string
}

// ResourcePresence is the presence reported by one connected resource.
type ResourcePresence struct {
	FullAddress string
	Show        Show
	Status      string
}

// Contact is one known remote identity.
type Contact struct {
	Key          Identity
	Address      string // bare, immutable once created
	DisplayName  string
	Subscription Subscription
	Profile      Profile
	// Presence maps resource name to its reported presence. An empty
	// map means fully offline.
	Presence map[string]ResourcePresence
	// MainResource is the resource messages are routed to; empty when
	// no resource is online. Invariant: if non-empty it is a key of
	// Presence.
	MainResource string
}

func newContact(key Identity, bare, name string, sub Subscription) *Contact {
	if name == "" {
		name = bare
	}
	return &Contact{
		Key:          key,
		Address:      bare,
		DisplayName:  name,
		Subscription: sub,
		Presence:     make(map[string]ResourcePresence),
	}
}

// Online reports whether any resource of the contact is online.
func (c *Contact) Online() bool {
	return c.MainResource != ""
}

// MainFullAddress returns the full address of the main resource, or ""
// when the contact is offline.
func (c *Contact) MainFullAddress() string {
	if c.MainResource == "" {
		return ""
	}
	return c.Presence[c.MainResource].FullAddress
}

// applyProfile merges fetched profile fields into the contact. Nil
// fields are unspecified and leave the stored value untouched. Returns
// whether the display name changed.
func (c *Contact) applyProfile(fullName, nickname, avatar *string) bool {
	if fullName != nil {
		c.Profile.FullName = fullName
	}
	if nickname != nil {
		c.Profile.Nickname = nickname
	}
	if avatar != nil {
		c.Profile.Avatar = avatar
	}
	return c.refreshDisplayName()
}

// refreshDisplayName applies the display name precedence: nickname
// over full name, full name over address, each only when fetched and
// non-empty.
func (c *Contact) refreshDisplayName() bool {
	name := c.DisplayName
	if c.Profile.FullName != nil && *c.Profile.FullName != "" {
		name = *c.Profile.FullName
	}
	if c.Profile.Nickname != nil && *c.Profile.Nickname != "" {
		name = *c.Profile.Nickname
	}
	if name == c.DisplayName {
		return false
	}
	c.DisplayName = name
	return true
}

// Self is the local user's own record.
type Self struct {
	Address     string // bare address used to log in
	Resource    string // resource bound for this session
	DisplayName string
	Profile     Profile
	// OtherResources holds the full addresses of other devices logged
	// in under the same bare address.
	OtherResources map[string]struct{}
}

// NewSelf creates the self record for a freshly bound session.
func NewSelf(bare, resource string) *Self {
	return &Self{
		Address:        bare,
		Resource:       resource,
		DisplayName:    bare,
		OtherResources: make(map[string]struct{}),
	}
}

// AddResource records another device logged in under the same bare
// address.
func (s *Self) AddResource(fullAddress string) {
	s.OtherResources[fullAddress] = struct{}{}
}

// RemoveResource drops a device that went offline.
func (s *Self) RemoveResource(fullAddress string) {
	delete(s.OtherResources, fullAddress)
}

func (s *Self) applyProfile(fullName, nickname, avatar *string) {
	if fullName != nil {
		s.Profile.FullName = fullName
	}
	if nickname != nil {
		s.Profile.Nickname = nickname
	}
	if avatar != nil {
		s.Profile.Avatar = avatar
	}
	if s.Profile.FullName != nil && *s.Profile.FullName != "" {
		s.DisplayName = *s.Profile.FullName
	}
	if s.Profile.Nickname != nil && *s.Profile.Nickname != "" {
		s.DisplayName = *s.Profile.Nickname
	}
}
