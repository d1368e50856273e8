package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"codeberg.org/coursepilot/server/internal/metrics"
)

// message type constants for websocket communication
const (
	// is sent after a transcript and draft were saved
	TypeSessionSaved = "session_saved"

	// is sent after a lesson draft was written or removed
	TypeDraftSaved = "draft_saved"

	// is sent when the session title changes
	TypeSessionRenamed = "session_renamed"

	// is sent when the session is deleted; the server closes the connection
	TypeSessionDeleted = "session_deleted"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// clients only send pings, so inbound messages stay small
	maxMessageSize = 4 * 1024

	// inbound messages per second and burst
	inboundRate  = 5
	inboundBurst = 10

	// time clients get to read the shutdown notice
	shutdownGrace = 500 * time.Millisecond
)

// hub connection limit constants
const (
	maxConnectionsPerUser = 10
	maxConnectionsPerIP   = 20
)

// errors
var (
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	ClientID  string          `json:"-"` // internal only, not sent to clients
	Timestamp time.Time       `json:"timestamp"`
	Sequence  uint64          `json:"seq,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// contains save information; Origin is the X-Client-ID of the saving tab
// so it can ignore its own notifications
type SessionSavedPayload struct {
	SavedAt time.Time `json:"saved_at"`
	Origin  string    `json:"origin,omitempty"`
}

// contains the key of the written draft
type DraftSavedPayload struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

type SessionRenamedPayload struct {
	Title  string `json:"title"`
	Origin string `json:"origin,omitempty"`
}

// contains information about server shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this client
	ID string

	// session ID this client is subscribed to
	SessionID string

	// owner of the session
	UserID string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message routing
	hub *Hub

	// buffered channel of outbound messages
	send chan []byte

	// inbound message limiter
	limiter *rate.Limiter

	// mutex for thread-safe operations
	mu sync.RWMutex

	// flag indicating if client is closed
	closed bool
}

// maintains the set of active clients and broadcasts messages to sessions
type Hub struct {
	// registered clients by session ID and client ID
	sessions map[string]map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// inbound messages from clients
	Inbound chan *Message

	// mutex for thread-safe access to sessions
	mu sync.RWMutex

	// message handlers for inbound message types
	handlers map[string]MessageHandler

	// channel to signal shutdown
	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	// connection tracking: user ID -> count of connections
	userConnections map[string]int

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int

	// sequence numbers per session for message ordering
	sessionSequences map[string]uint64

	metrics *metrics.Metrics
}

// processes a specific inbound message type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error
