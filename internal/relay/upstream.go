package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Upstream event types received from the realtime service.
const (
	EventSessionCreated      = "session.created"
	EventSessionUpdated      = "session.updated"
	EventResponseCreated     = "response.created"
	EventResponseDone        = "response.done"
	EventAudioDelta          = "response.audio.delta"
	EventTranscriptDelta     = "response.audio_transcript.delta"
	EventTranscriptDone      = "response.audio_transcript.done"
	EventInputTranscriptDone = "conversation.item.input_audio_transcription.completed"
	EventError               = "error"
)

// ServerEvent is one decoded upstream event. Fields are populated per type.
type ServerEvent struct {
	Type       string        `json:"type"`
	Delta      string        `json:"delta,omitempty"`
	Transcript string        `json:"transcript,omitempty"`
	Response   *ResponseBody `json:"response,omitempty"`
	Error      *ErrorBody    `json:"error,omitempty"`
}

// ResponseBody is the payload of response.done events.
type ResponseBody struct {
	Output []OutputItem `json:"output"`
}

// OutputItem is one item of a completed turn's output.
type OutputItem struct {
	Type      string `json:"type"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ErrorBody is the payload of upstream error events.
type ErrorBody struct {
	Message string `json:"message"`
}

// ToolCalls extracts the function call items from a completed turn.
func (r *ResponseBody) ToolCalls() []ToolCall {
	if r == nil {
		return nil
	}
	var calls []ToolCall
	for _, item := range r.Output {
		if item.Type == "function_call" {
			calls = append(calls, ToolCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
	}
	return calls
}

// Events sent upstream.

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func audioAppend(audio string) audioAppendEvent {
	return audioAppendEvent{Type: "input_audio_buffer.append", Audio: audio}
}

type commitEvent struct {
	Type string `json:"type"`
}

func audioCommit() commitEvent {
	return commitEvent{Type: "input_audio_buffer.commit"}
}

type responseParams struct {
	Modalities []string `json:"modalities,omitempty"`
}

type responseCreateEvent struct {
	Type     string          `json:"type"`
	Response *responseParams `json:"response,omitempty"`
}

func responseCreate(modalities ...string) responseCreateEvent {
	ev := responseCreateEvent{Type: "response.create"}
	if len(modalities) > 0 {
		ev.Response = &responseParams{Modalities: modalities}
	}
	return ev
}

type functionCallOutput struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Output string `json:"output"`
}

type itemCreateEvent struct {
	Type string             `json:"type"`
	Item functionCallOutput `json:"item"`
}

func functionOutputItem(callID, output string) itemCreateEvent {
	return itemCreateEvent{
		Type: "conversation.item.create",
		Item: functionCallOutput{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	}
}

// ConnectFailureKind distinguishes upstream connect failures by cause.
type ConnectFailureKind string

const (
	ConnectAuth      ConnectFailureKind = "auth"
	ConnectRateLimit ConnectFailureKind = "rate_limit"
	ConnectOther     ConnectFailureKind = "other"
)

// ConnectError is returned when the upstream WebSocket handshake fails.
type ConnectError struct {
	Kind   ConnectFailureKind
	Status int
	cause  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("upstream connect failed (status %d): %v", e.Status, e.cause)
}

func (e *ConnectError) Unwrap() error {
	return e.cause
}

// ClientMessage is the short human-readable message surfaced to the client.
func (e *ConnectError) ClientMessage() string {
	switch e.Kind {
	case ConnectAuth:
		return "Invalid OpenAI API key"
	case ConnectRateLimit:
		return "Rate limited - please wait"
	default:
		return "Failed to connect to OpenAI"
	}
}

const (
	dialHandshakeTimeout = 15 * time.Second
	upstreamPingInterval = 20 * time.Second
)

// Dial connects to the realtime service. Handshake failures are classified by
// HTTP status so the caller can surface a specific message.
func Dial(ctx context.Context, rawURL, apiKey string) (Transport, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: dialHandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		kind := ConnectOther
		switch status {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = ConnectAuth
		case http.StatusTooManyRequests:
			kind = ConnectRateLimit
		}
		return nil, &ConnectError{Kind: kind, Status: status, cause: err}
	}

	t := newWSTransport(conn)
	t.startPing(upstreamPingInterval)
	return t, nil
}
