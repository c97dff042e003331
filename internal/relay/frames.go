// Package relay bridges a browser audio client and the OpenAI Realtime API,
// executing calendar tool calls mid-stream.
package relay

// Client frame types (browser to relay).
const (
	FrameAudio = "audio"
	FrameStart = "start"
	FrameStop  = "stop"
)

// ClientFrame is one JSON-framed message from the browser. Unknown types are
// ignored as a forward-compatible no-op.
type ClientFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio,omitempty"`
}

// StatusFrame reports connection status to the client.
type StatusFrame struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewStatusFrame builds a status frame.
func NewStatusFrame(status, message string) StatusFrame {
	return StatusFrame{Type: "status", Status: status, Message: message}
}

// AudioFrame carries an opaque base64 audio payload to the client.
type AudioFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

func audioFrame(audio string) AudioFrame {
	return AudioFrame{Type: "audio", Audio: audio}
}

// TranscriptFrame is a streaming transcript delta.
type TranscriptFrame struct {
	Type  string `json:"type"`
	Role  string `json:"role"`
	Delta string `json:"delta"`
}

func transcriptFrame(role, delta string) TranscriptFrame {
	return TranscriptFrame{Type: "transcript", Role: role, Delta: delta}
}

// TranscriptDoneFrame is a completed transcript line.
type TranscriptDoneFrame struct {
	Type string `json:"type"`
	Role string `json:"role"`
	Text string `json:"text"`
}

func transcriptDoneFrame(role, text string) TranscriptDoneFrame {
	return TranscriptDoneFrame{Type: "transcript_done", Role: role, Text: text}
}

// FunctionResultFrame reports a tool call outcome to the client.
type FunctionResultFrame struct {
	Type   string         `json:"type"`
	Name   string         `json:"name"`
	Result map[string]any `json:"result"`
}

func functionResultFrame(name string, result map[string]any) FunctionResultFrame {
	return FunctionResultFrame{Type: "function_result", Name: name, Result: result}
}

// AuthStatusFrame tells the client whether the user's calendar is connected.
type AuthStatusFrame struct {
	Type          string `json:"type"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
}

// NewAuthStatusFrame builds the auth status push sent on connection.
func NewAuthStatusFrame(authenticated bool, email string) AuthStatusFrame {
	f := AuthStatusFrame{Type: "auth_status", Authenticated: authenticated}
	if authenticated {
		f.Email = email
	}
	return f
}

// ErrorFrame carries a short human-readable error to the client.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorFrame builds an error frame.
func NewErrorFrame(message string) ErrorFrame {
	return ErrorFrame{Type: "error", Message: message}
}
