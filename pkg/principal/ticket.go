package principal

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMalformedTicket reports a ticket that cannot be decoded back into a
// principal. Callers treat it as an authentication failure, never as a fault.
var ErrMalformedTicket = errors.New("principal: malformed ticket")

// Serialize encodes the principal into its ticket form: compact JSON with
// identities and claims in insertion order. Serialization is deterministic,
// so re-serializing an unchanged principal yields an identical ticket.
func Serialize(p Principal) (string, error) {
	data, err := json.Marshal(p.Identities)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Deserialize is the exact inverse of Serialize. It returns
// ErrMalformedTicket for anything that does not decode to at least one
// identity; it never returns partially decoded data.
func Deserialize(ticket string) (Principal, error) {
	ticket = strings.TrimSpace(ticket)
	if ticket == "" {
		return Principal{}, ErrMalformedTicket
	}

	var ids []Identity
	dec := json.NewDecoder(strings.NewReader(ticket))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ids); err != nil {
		return Principal{}, ErrMalformedTicket
	}
	if dec.More() || len(ids) == 0 {
		return Principal{}, ErrMalformedTicket
	}

	return Principal{Identities: ids}, nil
}
