package core

import "testing"

func TestApplyResourcePresenceSelectsLastWriter(t *testing.T) {
	c := newContact("juliet-example-com", "juliet@example.com", "", SubscriptionSubscribed)

	c.ApplyResourcePresence("balcony", "juliet@example.com/balcony", ShowDND, "busy!")
	if c.MainResource != "balcony" {
		t.Fatalf("expected main resource balcony, got %q", c.MainResource)
	}

	c.ApplyResourcePresence("phone", "juliet@example.com/phone", ShowOnline, "")
	if c.MainResource != "phone" {
		t.Fatalf("expected main resource phone after later update, got %q", c.MainResource)
	}
	if len(c.Presence) != 2 {
		t.Fatalf("expected 2 tracked resources, got %d", len(c.Presence))
	}
}

func TestRemoveMainResourceResetsWithoutFallback(t *testing.T) {
	c := newContact("juliet-example-com", "juliet@example.com", "", SubscriptionSubscribed)
	c.ApplyResourcePresence("balcony", "juliet@example.com/balcony", ShowOnline, "")
	c.ApplyResourcePresence("phone", "juliet@example.com/phone", ShowAway, "")

	if !c.RemoveResourcePresence("phone") {
		t.Fatalf("expected main-resource reset to be reported")
	}
	if c.MainResource != "" {
		t.Fatalf("expected no main resource, got %q", c.MainResource)
	}
	if c.Availability() != AvailabilityOffline {
		t.Fatalf("expected offline, got %q", c.Availability())
	}
	if _, ok := c.Presence["balcony"]; !ok {
		t.Fatalf("unrelated resource should remain tracked")
	}
}

func TestRemoveNonMainResourceKeepsMain(t *testing.T) {
	c := newContact("juliet-example-com", "juliet@example.com", "", SubscriptionSubscribed)
	c.ApplyResourcePresence("balcony", "juliet@example.com/balcony", ShowOnline, "")
	c.ApplyResourcePresence("phone", "juliet@example.com/phone", ShowAway, "")

	if c.RemoveResourcePresence("balcony") {
		t.Fatalf("removing a non-main resource must not reset the main one")
	}
	if c.MainResource != "phone" {
		t.Fatalf("expected main resource phone, got %q", c.MainResource)
	}
}

func TestAvailabilityTable(t *testing.T) {
	cases := []struct {
		show Show
		want Availability
	}{
		{ShowOnline, AvailabilityOnline},
		{ShowChat, AvailabilityOnline},
		{ShowAway, AvailabilityAway},
		{ShowXA, AvailabilityAway},
		{ShowDND, AvailabilityDND},
	}
	c := newContact("k", "a@b.c", "", SubscriptionSubscribed)
	for _, tc := range cases {
		c.ApplyResourcePresence("r", "a@b.c/r", tc.show, "")
		if got := c.Availability(); got != tc.want {
			t.Fatalf("show %q: expected %q, got %q", tc.show, tc.want, got)
		}
	}
}
