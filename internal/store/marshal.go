package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/jagtrack/internal/ir"
)

// marshalPayload encodes v as compact JSON TEXT.
// HTML escaping is disabled so stored payloads match what transports see.
func marshalPayload(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalInbound(data string) (ir.Inbound, error) {
	var ev ir.Inbound
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return ir.Inbound{}, fmt.Errorf("unmarshal observation: %w", err)
	}
	return ev, nil
}

func unmarshalOutbound(data string) (ir.Outbound, error) {
	var o ir.Outbound
	if err := json.Unmarshal([]byte(data), &o); err != nil {
		return ir.Outbound{}, fmt.Errorf("unmarshal publication: %w", err)
	}
	return o, nil
}

// identityKey returns the content address of the activity a publication
// describes, or "" when the payload names no identity.
func identityKey(o ir.Outbound) (string, error) {
	switch {
	case o.Discovery != nil:
		return ir.IdentityKey(o.Discovery.Identity())
	case o.Summary != nil:
		return ir.IdentityKey(o.Summary.Identity)
	}
	return "", nil
}
