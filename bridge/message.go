// Package bridge is the Go counterpart of the embedding page's message
// listener: it correlates typed results posted by the Kimlik consent window
// with the flow that opened it.
//
// The two windows share nothing but serialized messages. A Bridge accepts a
// delivery only from the exact backend origin, matches it to a pending flow
// by correlation key (the OAuth state, or the charge ID), resolves that flow
// exactly once, and tears down the popup watcher with it. Embedders that host
// a real window system (webview, spawned browser) plug in via the Window
// interface; the TTL, cancellation, closed-polling, and the race between
// "message arrived" and "window closed" are all owned here.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Message types posted by the consent/charge/topup windows.
const (
	TypeOAuthSuccess   = "oauth_success"
	TypeOAuthDenied    = "oauth_denied"
	TypeChargeApproved = "charge_approved"
	TypeChargeRejected = "charge_rejected"
	TypeTopupCompleted = "topup_completed"
	TypeTopupCancelled = "topup_cancelled"
)

// ErrBadMessage reports a payload that is not a known typed message.
var ErrBadMessage = errors.New("bridge: malformed message")

// Message is one typed result posted by a consent window.
//
// oauth_success carries RedirectURI (with code and state in its query) and
// State; oauth_denied carries State; the charge and topup types carry
// ChargeID. The Kimlik pages always include the correlation field for their
// type.
type Message struct {
	Type        string `json:"type"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	State       string `json:"state,omitempty"`
	ChargeID    string `json:"charge_id,omitempty"`
}

// knownTypes is the closed set of accepted message types.
var knownTypes = map[string]bool{
	TypeOAuthSuccess:   true,
	TypeOAuthDenied:    true,
	TypeChargeApproved: true,
	TypeChargeRejected: true,
	TypeTopupCompleted: true,
	TypeTopupCancelled: true,
}

// DecodeMessage narrows raw JSON into a Message. Unknown types and payloads
// missing their correlation field fail with ErrBadMessage.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if !knownTypes[m.Type] {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrBadMessage, m.Type)
	}
	if _, err := m.Key(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Key returns the correlation key for the message: the OAuth state for
// oauth_* messages, the charge ID for charge_* and topup_* messages.
//
// For oauth_success the state inside RedirectURI is authoritative; a
// top-level State that disagrees with it is malformed.
func (m Message) Key() (string, error) {
	switch m.Type {
	case TypeOAuthSuccess:
		u, err := url.Parse(m.RedirectURI)
		if err != nil || m.RedirectURI == "" {
			return "", fmt.Errorf("%w: oauth_success without redirect_uri", ErrBadMessage)
		}
		state := u.Query().Get("state")
		if state == "" {
			return "", fmt.Errorf("%w: oauth_success redirect_uri without state", ErrBadMessage)
		}
		if m.State != "" && m.State != state {
			return "", fmt.Errorf("%w: state fields disagree", ErrBadMessage)
		}
		return state, nil
	case TypeOAuthDenied:
		if m.State == "" {
			return "", fmt.Errorf("%w: %s without state", ErrBadMessage, m.Type)
		}
		return m.State, nil
	case TypeTopupCompleted, TypeTopupCancelled:
		// The embedder cannot know the charge ID before the topup
		// completes, so topup pages echo the embedder-supplied state and
		// that is the correlation key; ChargeID alone is accepted for
		// embedders that poll the backend instead.
		if m.State != "" {
			return m.State, nil
		}
		if m.ChargeID != "" {
			return m.ChargeID, nil
		}
		return "", fmt.Errorf("%w: %s without state or charge_id", ErrBadMessage, m.Type)
	default:
		if m.ChargeID == "" {
			return "", fmt.Errorf("%w: %s without charge_id", ErrBadMessage, m.Type)
		}
		return m.ChargeID, nil
	}
}
