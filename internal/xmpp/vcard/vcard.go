// Package vcard implements the vcard-temp (XEP-0054) profile-card
// payload: one client for both fetching and publishing, used for
// contacts and for the local user alike.
package vcard

import (
	"encoding/xml"
	"strings"
)

// NS is the vcard-temp namespace.
const NS = "vcard-temp"

// Card is a decoded profile card. Nil fields were absent from the
// response, which is distinct from present-but-empty.
type Card struct {
	FullName *string
	Nickname *string
	// Avatar is a data URI assembled from the card's photo, e.g.
	// "data:image/png;base64,iVBOR...".
	Avatar *string
}

// Payload is the wire form of a vcard-temp card.
type Payload struct {
	XMLName  xml.Name `xml:"vcard-temp vCard"`
	FullName *string  `xml:"FN"`
	Nickname *string  `xml:"NICKNAME"`
	Photo    *Photo   `xml:"PHOTO"`
}

// Photo is the PHOTO element of a card.
type Photo struct {
	Type   string `xml:"TYPE"`
	BinVal string `xml:"BINVAL"`
}

// Decode converts a wire payload into a Card, assembling the avatar
// data URI when a photo is present.
func Decode(p *Payload) Card {
	if p == nil {
		return Card{}
	}
	card := Card{
		FullName: p.FullName,
		Nickname: p.Nickname,
	}
	if p.Photo != nil && p.Photo.BinVal != "" {
		uri := "data:" + p.Photo.Type + ";base64," + compactBase64(p.Photo.BinVal)
		card.Avatar = &uri
	}
	return card
}

// Encode converts a Card into its wire payload. Nil fields are
// omitted so the server keeps whatever it already stores for them.
func Encode(c Card) *Payload {
	p := &Payload{
		FullName: c.FullName,
		Nickname: c.Nickname,
	}
	if c.Avatar != nil {
		if typ, data, ok := splitDataURI(*c.Avatar); ok {
			p.Photo = &Photo{Type: typ, BinVal: data}
		}
	}
	return p
}

// compactBase64 strips the whitespace some servers interleave into
// BINVAL content.
func compactBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
}

func splitDataURI(uri string) (typ, data string, ok bool) {
	rest, found := strings.CutPrefix(uri, "data:")
	if !found {
		return "", "", false
	}
	typ, data, found = strings.Cut(rest, ";base64,")
	if !found || data == "" {
		return "", "", false
	}
	return typ, data, true
}
