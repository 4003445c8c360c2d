package core

import (
	"errors"
	"testing"
)

func str(s string) *string { return &s }

func TestRosterRemoveIsTerminal(t *testing.T) {
	d := NewDirectory()

	for i := 0; i < 3; i++ {
		if err := d.UpsertFromRoster("a@x.com", "Alice", SubscriptionSubscribed); err != nil {
			t.Fatalf("upsert returned error: %v", err)
		}
	}
	key, _ := Normalize("a@x.com")
	if _, ok := d.Get(key); !ok {
		t.Fatalf("expected contact after upserts")
	}

	var removed Identity
	d.OnContactRemoved(func(k Identity) { removed = k })
	if err := d.UpsertFromRoster("a@x.com", "", SubscriptionRemove); err != nil {
		t.Fatalf("remove returned error: %v", err)
	}
	if _, ok := d.Get(key); ok {
		t.Fatalf("expected contact gone after remove")
	}
	if removed != key {
		t.Fatalf("expected removal notification for %q, got %q", key, removed)
	}

	// Idempotent on a missing key.
	removed = SelfKey
	if err := d.UpsertFromRoster("a@x.com", "", SubscriptionRemove); err != nil {
		t.Fatalf("second remove returned error: %v", err)
	}
	if removed != SelfKey {
		t.Fatalf("did not expect a second removal notification")
	}
}

func TestUpsertFromRosterCreatesAndUpdates(t *testing.T) {
	d := NewDirectory()

	var newSubscribed []Identity
	d.OnNewSubscribed(func(k Identity) { newSubscribed = append(newSubscribed, k) })

	if err := d.UpsertFromRoster("a@x.com", "Alice", SubscriptionSubscribed); err != nil {
		t.Fatalf("upsert returned error: %v", err)
	}
	key, _ := Normalize("a@x.com")
	c, ok := d.Get(key)
	if !ok {
		t.Fatalf("expected contact")
	}
	if c.DisplayName != "Alice" || c.Subscription != SubscriptionSubscribed {
		t.Fatalf("unexpected contact: %+v", c)
	}
	if c.MainResource != "" || len(c.Presence) != 0 {
		t.Fatalf("new contact must start fully offline")
	}
	if len(newSubscribed) != 1 || newSubscribed[0] != key {
		t.Fatalf("expected one new-subscribed notification, got %v", newSubscribed)
	}

	// Update does not re-trigger the fetch hook.
	if err := d.UpsertFromRoster("a@x.com", "Alice Capulet", SubscriptionSubscribed); err != nil {
		t.Fatalf("update returned error: %v", err)
	}
	if c.DisplayName != "Alice Capulet" {
		t.Fatalf("expected renamed contact, got %q", c.DisplayName)
	}
	if len(newSubscribed) != 1 {
		t.Fatalf("update must not re-enqueue a profile fetch")
	}
}

func TestUpsertFromRosterDefaultsNameToAddress(t *testing.T) {
	d := NewDirectory()
	if err := d.UpsertFromRoster("b@x.com", "", SubscriptionSubscribed); err != nil {
		t.Fatalf("upsert returned error: %v", err)
	}
	key, _ := Normalize("b@x.com")
	c, _ := d.Get(key)
	if c.DisplayName != "b@x.com" {
		t.Fatalf("expected display name to default to address, got %q", c.DisplayName)
	}
}

func TestInboundSubscriptionLifecycle(t *testing.T) {
	d := NewDirectory()
	if err := d.ApplyInboundSubscription("romeo@example.com/phone"); err != nil {
		t.Fatalf("inbound subscription returned error: %v", err)
	}
	key, _ := Normalize("romeo@example.com")
	c, ok := d.Get(key)
	if !ok {
		t.Fatalf("expected contact for inbound request")
	}
	if c.Subscription != SubscriptionInboundRequest {
		t.Fatalf("expected inbound-request state, got %q", c.Subscription)
	}
	if c.Address != "romeo@example.com" {
		t.Fatalf("expected bare address, got %q", c.Address)
	}

	if err := d.AcceptInbound(key); err != nil {
		t.Fatalf("accept returned error: %v", err)
	}
	if c.Subscription != SubscriptionSubscribed {
		t.Fatalf("expected optimistic subscribed state, got %q", c.Subscription)
	}
}

func TestRejectInboundDeletesContact(t *testing.T) {
	d := NewDirectory()
	_ = d.ApplyInboundSubscription("romeo@example.com")
	key, _ := Normalize("romeo@example.com")

	if err := d.RejectInbound(key); err != nil {
		t.Fatalf("reject returned error: %v", err)
	}
	if _, ok := d.Get(key); ok {
		t.Fatalf("expected contact gone after reject")
	}
	if err := d.RejectInbound(key); !errors.Is(err, ErrUnknownContact) {
		t.Fatalf("expected ErrUnknownContact, got %v", err)
	}
}

func TestApplyProfileNeverOverwritesWithUnspecified(t *testing.T) {
	d := NewDirectory()
	_ = d.UpsertFromRoster("a@x.com", "Alice", SubscriptionSubscribed)
	key, _ := Normalize("a@x.com")

	if err := d.ApplyProfile(key, str("Alice Capulet"), nil, nil); err != nil {
		t.Fatalf("first apply returned error: %v", err)
	}
	// Round-trip with only the nickname set.
	if err := d.ApplyProfile(key, nil, str("Allie"), nil); err != nil {
		t.Fatalf("second apply returned error: %v", err)
	}

	c, _ := d.Get(key)
	if c.Profile.FullName == nil || *c.Profile.FullName != "Alice Capulet" {
		t.Fatalf("full name was not preserved: %+v", c.Profile)
	}
	if c.Profile.Nickname == nil || *c.Profile.Nickname != "Allie" {
		t.Fatalf("nickname was not applied: %+v", c.Profile)
	}
	if c.DisplayName != "Allie" {
		t.Fatalf("expected nickname to win display precedence, got %q", c.DisplayName)
	}
}

func TestApplyProfileFetchedEmptyIsDistinctFromUnset(t *testing.T) {
	d := NewDirectory()
	_ = d.UpsertFromRoster("a@x.com", "Alice", SubscriptionSubscribed)
	key, _ := Normalize("a@x.com")

	if err := d.ApplyProfile(key, str(""), nil, nil); err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	c, _ := d.Get(key)
	if c.Profile.FullName == nil || *c.Profile.FullName != "" {
		t.Fatalf("expected fetched-empty full name, got %+v", c.Profile.FullName)
	}
	if c.Profile.Nickname != nil {
		t.Fatalf("nickname should still be unfetched")
	}
	if c.DisplayName != "Alice" {
		t.Fatalf("empty full name must not take over the display name")
	}
}

func TestApplyProfileUnknownContact(t *testing.T) {
	d := NewDirectory()
	err := d.ApplyProfile(Identity("ghost-x-com"), str("Ghost"), nil, nil)
	if !errors.Is(err, ErrUnknownContact) {
		t.Fatalf("expected ErrUnknownContact, got %v", err)
	}
}

func TestApplyProfileSelfPrecedence(t *testing.T) {
	d := NewDirectory()
	d.SetSelf(NewSelf("me@example.com", "balcony"))

	var updated []Identity
	d.OnProfileUpdated(func(k Identity) { updated = append(updated, k) })

	if err := d.ApplyProfile(SelfKey, str("My Name"), nil, nil); err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if d.Self().DisplayName != "My Name" {
		t.Fatalf("expected full name display, got %q", d.Self().DisplayName)
	}
	if err := d.ApplyProfile(SelfKey, nil, str("nick"), nil); err != nil {
		t.Fatalf("apply returned error: %v", err)
	}
	if d.Self().DisplayName != "nick" {
		t.Fatalf("expected nickname to override, got %q", d.Self().DisplayName)
	}
	if len(updated) != 2 || updated[0] != SelfKey {
		t.Fatalf("expected self profile notifications, got %v", updated)
	}
}

func TestPresenceUpdateUnknownContact(t *testing.T) {
	d := NewDirectory()
	err := d.ApplyResourcePresence(Identity("ghost-x-com"), "phone", "ghost@x.com/phone", ShowOnline, "")
	if !errors.Is(err, ErrUnknownContact) {
		t.Fatalf("expected ErrUnknownContact, got %v", err)
	}
}

func TestClearDropsEverything(t *testing.T) {
	d := NewDirectory()
	d.SetSelf(NewSelf("me@example.com", "r"))
	_ = d.UpsertFromRoster("a@x.com", "", SubscriptionSubscribed)

	d.Clear()
	if d.Len() != 0 {
		t.Fatalf("expected empty directory after clear")
	}
	if d.Self() != nil {
		t.Fatalf("expected self record cleared")
	}
}

func TestSelfOtherResourcesSetSemantics(t *testing.T) {
	s := NewSelf("me@example.com", "here")
	s.AddResource("me@example.com/phone")
	s.AddResource("me@example.com/phone")
	s.AddResource("me@example.com/tablet")
	if len(s.OtherResources) != 2 {
		t.Fatalf("expected 2 other resources, got %d", len(s.OtherResources))
	}
	s.RemoveResource("me@example.com/phone")
	if _, ok := s.OtherResources["me@example.com/phone"]; ok {
		t.Fatalf("expected phone resource removed")
	}
	s.RemoveResource("me@example.com/phone") // idempotent
	if len(s.OtherResources) != 1 {
		t.Fatalf("expected 1 other resource, got %d", len(s.OtherResources))
	}
}
