package gateway

import "encoding/json"

// Frame types for the WebSocket protocol.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// ProtocolVersion is the frame protocol spoken by this server.
const ProtocolVersion = 1

// RPC methods.
const (
	MethodConnect        = "connect"
	MethodHealth         = "health"
	MethodChatSend       = "chat.send"
	MethodRespondersList = "responders.list"
	MethodSessionGet     = "session.get"
)

// EventChallenge opens every connection.
const EventChallenge = "connect.challenge"

// Error codes carried in ErrorShape.Code.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidParams   = "invalid_params"
	CodeUnauthorized    = "unauthorized"
	CodeProtocolError   = "protocol_error"
	CodeMethodNotFound  = "method_not_found"
	CodeNotFound        = "not_found"
	CodeSessionConflict = "session_conflict"
	CodeTimeout         = "timeout"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal_error"
)

// Frame is the envelope for every WebSocket message. Type discriminates
// requests, responses and events.
type Frame struct {
	Type string `json:"type"`

	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`

	OK      *bool           `json:"ok,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	Event string `json:"event,omitempty"`
	Seq   int64  `json:"seq,omitempty"`

	Error *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error body of failed responses, over both HTTP and
// WebSocket.
type ErrorShape struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
	RetryAfter int64  `json:"retryAfterMs,omitempty"`
}

// ConnectParams are sent by the client in the "connect" request.
type ConnectParams struct {
	MinProtocol int          `json:"minProtocol"`
	MaxProtocol int          `json:"maxProtocol"`
	Client      ClientInfo   `json:"client"`
	Auth        *ConnectAuth `json:"auth,omitempty"`
	Locale      string       `json:"locale,omitempty"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Version     string `json:"version"`
	Platform    string `json:"platform"`
}

// ConnectAuth carries credentials.
type ConnectAuth struct {
	Token    string `json:"token,omitempty"`
	Password string `json:"password,omitempty"`
}

// HelloOK is the payload of a successful connect.
type HelloOK struct {
	Protocol int          `json:"protocol"`
	Server   ServerInfo   `json:"server"`
	Methods  []string     `json:"methods"`
	Policy   ServerPolicy `json:"policy"`
}

// ServerInfo identifies the gateway.
type ServerInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	ConnID  string `json:"connId"`
}

// ServerPolicy tells the client the limits it must respect.
type ServerPolicy struct {
	MaxPayload    int `json:"maxPayload"`
	MaxMessageLen int `json:"maxMessageLen"`
}

// SessionParams select a session for session.get.
type SessionParams struct {
	SessionID string `json:"sessionId"`
}

// NewRequest creates a request frame.
func NewRequest(id, method string, params any) (Frame, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeRequest, ID: id, Method: method, Params: raw}, nil
}

// NewResponse creates a success response frame.
func NewResponse(id string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	ok := true
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Payload: raw}, nil
}

// NewErrorResponse creates a failed response frame.
func NewErrorResponse(id string, shape ErrorShape) Frame {
	ok := false
	return Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: &shape}
}

// NewEvent creates an event frame.
func NewEvent(event string, payload any, seq int64) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, Payload: raw, Seq: seq}, nil
}
