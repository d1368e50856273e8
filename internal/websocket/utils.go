package websocket

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"codeberg.org/coursepilot/server/internal/logger"
)

// returns an origin check for the upgrader; outside production every
// origin is accepted
func CheckOrigin(allowedOrigins []string, production bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if !production {
			return true
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			// non-browser clients (authorctl) send no origin
			return true
		}

		if len(allowedOrigins) == 0 {
			logger.Warn("websocket origin rejected - ALLOWED_ORIGINS not configured",
				"origin", origin,
			)
			return false
		}

		if slices.Contains(allowedOrigins, origin) {
			return true
		}

		logger.Warn("websocket origin rejected - not in allowed origins",
			"origin", origin,
			"allowed_origins", allowedOrigins,
		)

		return false
	}
}

func GenerateClientID() (string, error) {
	bytes := make([]byte, 16)

	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}

	return hex.EncodeToString(bytes), nil
}

// builds a message with a marshalled payload
func NewMessage(msgType, sessionID string, payload any) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}

	return msg, nil
}

// decodes the payload into v
func (m *Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrInvalidMessage
	}
	return json.Unmarshal(m.Payload, v)
}
