package core

import (
	"fmt"
	"strings"

	"mellium.im/xmpp/jid"
)

// Identity is a stable local key derived from a normalized bare address.
// It is safe to use as a map key and as a structural identifier in
// downstream consumers (no '@' or '.' characters).
type Identity string

// SelfKey is the sentinel identity for the local user's own record.
// Normalize never produces it: empty and malformed addresses fail.
const SelfKey Identity = ""

// ErrInvalidAddress is returned when an address cannot be parsed.
var ErrInvalidAddress = fmt.Errorf("invalid address")

// Address is the result of resolving a raw address string.
type Address struct {
	Key      Identity
	Bare     string
	Resource string
}

var keyReplacer = strings.NewReplacer("@", "-", ".", "-")

// Resolve normalizes an address into a stable local key plus its
// canonical bare form and resource part. Normalization is handled by
// JID parsing (case-insensitive domain, resource split); the key
// flattens '@' and '.' so it stays inert in structured output.
func Resolve(address string) (Address, error) {
	j, err := jid.Parse(strings.TrimSpace(address))
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, address, err)
	}
	if j.Localpart() == "" {
		return Address{}, fmt.Errorf("%w: %q: missing local part", ErrInvalidAddress, address)
	}
	bare := j.Bare().String()
	return Address{
		Key:      Identity(keyReplacer.Replace(bare)),
		Bare:     bare,
		Resource: j.Resourcepart(),
	}, nil
}

// Normalize resolves an address and returns only its local key.
func Normalize(address string) (Identity, error) {
	addr, err := Resolve(address)
	if err != nil {
		return "", err
	}
	return addr.Key, nil
}
