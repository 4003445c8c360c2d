package core

// Show represents the presence show value reported by a resource.
type Show string

const (
	ShowOnline Show = ""
	ShowChat   Show = "chat"
	ShowAway   Show = "away"
	ShowXA     Show = "xa"
	ShowDND    Show = "dnd"
)

// Availability is the consolidated online status derived for display.
type Availability string

const (
	AvailabilityOffline Availability = "offline"
	AvailabilityOnline  Availability = "online"
	AvailabilityAway    Availability = "away"
	AvailabilityDND     Availability = "dnd"
)

// ApplyResourcePresence upserts a resource's presence on the contact
// and selects that resource as the main one. Selection is
// last-writer-wins: there is no priority ordering among
// simultaneously-online resources.
func (c *Contact) ApplyResourcePresence(resource, fullAddress string, show Show, status string) {
	c.Presence[resource] = ResourcePresence{
		FullAddress: fullAddress,
		Show:        show,
		Status:      status,
	}
	c.MainResource = resource
}

// RemoveResourcePresence deletes the resource's presence entry. If the
// resource was the main one the contact becomes unroutable: no
// fallback resource is selected even when others remain online.
// Reports whether the main resource was reset.
func (c *Contact) RemoveResourcePresence(resource string) bool {
	delete(c.Presence, resource)
	if c.MainResource != resource {
		return false
	}
	c.MainResource = ""
	return true
}

// Availability derives the contact's consolidated status from its main
// resource.
func (c *Contact) Availability() Availability {
	if c.MainResource == "" {
		return AvailabilityOffline
	}
	return showAvailability(c.Presence[c.MainResource].Show)
}

func showAvailability(show Show) Availability {
	switch show {
	case ShowOnline, ShowChat:
		return AvailabilityOnline
	case ShowAway, ShowXA:
		return AvailabilityAway
	case ShowDND:
		return AvailabilityDND
	default:
		return AvailabilityOnline
	}
}
