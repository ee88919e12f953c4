package sdk

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// AuthType is the way a player authenticated.
type AuthType string

const (
	// AuthGuest is a locally created player unknown to the server until it
	// saves something.
	AuthGuest AuthType = "guest"
	// AuthKey logs in with a key, typically a "Hero" key created in the
	// Flox web interface. Heroes can access all entities.
	AuthKey AuthType = "key"
	// AuthToken logs in with an id/token pair from an external provider.
	AuthToken AuthType = "token"
)

// Session is the authenticated identity attached to every request.
// A Session is never mutated; a login replaces it wholesale.
type Session struct {
	AuthType  AuthType
	AuthID    string
	AuthToken string
	ID        string
}

// IsGuest reports whether the session belongs to a guest.
func (s Session) IsGuest() bool {
	return s.AuthType == AuthGuest
}

// authPayload is the map sent to the authenticate endpoint and embedded in
// the metadata header. Empty id/token fields are sent as null.
func (s Session) authPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"authType":  string(s.AuthType),
		"authId":    nullable(s.AuthID),
		"authToken": nullable(s.AuthToken),
	}
	if s.ID != "" {
		payload["id"] = s.ID
	}
	return payload
}

// MarshalJSON encodes the session the way the server expects it.
func (s Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.authPayload())
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// newGuestSession mints a guest identity locally.
func newGuestSession() Session {
	return Session{AuthType: AuthGuest, ID: randomUID()}
}

const uidAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// uidLength is the length of locally minted ids
const uidLength = 16

// randomUID creates a random alphanumeric identifier of 16 characters.
// It draws on the random bytes of v4 UUIDs, skipping the version and
// variant bytes, and rejects bytes that would bias the alphabet.
func randomUID() string {
	var sb strings.Builder
	sb.Grow(uidLength)
	for sb.Len() < uidLength {
		id := uuid.New()
		for i, b := range id {
			if i == 6 || i == 8 || b >= 248 {
				continue
			}
			sb.WriteByte(uidAlphabet[b%62])
			if sb.Len() == uidLength {
				break
			}
		}
	}
	return sb.String()
}
