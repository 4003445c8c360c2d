package xmpp

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestDecodeMessageWithBodyAndComposing(t *testing.T) {
	raw := []byte(`<message xmlns='jabber:client' from='juliet@example.com/balcony' type='chat'>` +
		`<body>hello</body>` +
		`<composing xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	var st messageStanza
	if err := xml.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if st.Body == nil || *st.Body != "hello" {
		t.Fatalf("unexpected body: %+v", st.Body)
	}
	if st.Composing == nil {
		t.Fatalf("expected composing marker")
	}
	if st.From != "juliet@example.com/balcony" {
		t.Fatalf("unexpected from: %q", st.From)
	}
}

func TestDecodeMessageWithoutBody(t *testing.T) {
	raw := []byte(`<message from='a@x.com/r' type='chat'>` +
		`<composing xmlns='http://jabber.org/protocol/chatstates'/></message>`)

	var st messageStanza
	if err := xml.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if st.Body != nil {
		t.Fatalf("expected absent body, got %q", *st.Body)
	}
	if st.Composing == nil {
		t.Fatalf("expected composing marker")
	}
}

func TestEncodeChatMessageCarriesActiveMarker(t *testing.T) {
	body := "hi"
	out, err := xml.Marshal(messageStanza{To: "a@x.com/r", Type: "chat", Body: &body, Active: &chatStateMarker{}})
	if err != nil {
		t.Fatalf("marshal returned error: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "<body>hi</body>") {
		t.Fatalf("expected body element, got %q", s)
	}
	if !strings.Contains(s, "active") || !strings.Contains(s, "http://jabber.org/protocol/chatstates") {
		t.Fatalf("expected active chat-state marker, got %q", s)
	}
}

func TestDecodePresence(t *testing.T) {
	raw := []byte(`<presence from='juliet@example.com/phone'><show>away</show><status>out</status></presence>`)

	var st presenceStanza
	if err := xml.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if st.Show != "away" || st.Status != "out" || st.Type != "" {
		t.Fatalf("unexpected presence: %+v", st)
	}
}

func TestDecodeRosterResult(t *testing.T) {
	raw := []byte(`<iq type='result' id='r1'><query xmlns='jabber:iq:roster'>` +
		`<item jid='a@x.com' name='Alice' subscription='both'/>` +
		`<item jid='b@x.com' subscription='remove'/></query></iq>`)

	var st iqStanza
	if err := xml.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if st.Roster == nil || len(st.Roster.Items) != 2 {
		t.Fatalf("unexpected roster payload: %+v", st.Roster)
	}
	items := rosterItems(st.Roster.Items)
	if items[0].Address != "a@x.com" || items[0].Name != "Alice" || items[0].Subscription != "both" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[1].Subscription != "remove" {
		t.Fatalf("unexpected second item: %+v", items[1])
	}
}

func TestDecodeVCardResult(t *testing.T) {
	raw := []byte(`<iq type='result' id='v1'><vCard xmlns='vcard-temp'><FN>Alice</FN></vCard></iq>`)

	var st iqStanza
	if err := xml.Unmarshal(raw, &st); err != nil {
		t.Fatalf("unmarshal returned error: %v", err)
	}
	if st.VCard == nil || st.VCard.FullName == nil || *st.VCard.FullName != "Alice" {
		t.Fatalf("unexpected vcard payload: %+v", st.VCard)
	}
}
