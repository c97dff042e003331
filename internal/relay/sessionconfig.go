package relay

import (
	"fmt"
	"time"
)

// ToolAddCalendarEvent is the single tool exposed to the assistant.
const ToolAddCalendarEvent = "add_calendar_event"

// sessionUpdateEvent configures the upstream session: voice, audio formats,
// turn detection, instructions, and the tool schema. It must be acknowledged
// (session.updated) before the first response.create is sent.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string           `json:"modalities"`
	Instructions            string             `json:"instructions"`
	Voice                   string             `json:"voice"`
	InputAudioFormat        string             `json:"input_audio_format"`
	OutputAudioFormat       string             `json:"output_audio_format"`
	InputAudioTranscription transcriptionModel `json:"input_audio_transcription"`
	TurnDetection           turnDetection      `json:"turn_detection"`
	Tools                   []toolSchema       `json:"tools"`
	ToolChoice              string             `json:"tool_choice"`
}

type transcriptionModel struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
}

type toolSchema struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// SessionUpdate builds the session configuration event. Instructions are
// templated with the current date and time in the configured zone so the
// assistant can resolve relative dates like "tomorrow".
func SessionUpdate(now time.Time, tzName string) any {
	return sessionUpdateEvent{
		Type: "session.update",
		Session: sessionParams{
			Modalities:              []string{"text", "audio"},
			Instructions:            instructions(now, tzName),
			Voice:                   "alloy",
			InputAudioFormat:        "pcm16",
			OutputAudioFormat:       "pcm16",
			InputAudioTranscription: transcriptionModel{Model: "whisper-1"},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         0.5,
				PrefixPaddingMS:   300,
				SilenceDurationMS: 500,
			},
			Tools:      []toolSchema{calendarToolSchema(tzName)},
			ToolChoice: "auto",
		},
	}
}

func instructions(now time.Time, tzName string) string {
	return fmt.Sprintf(`You are a friendly voice assistant that helps users schedule calendar meetings.

CURRENT DATE AND TIME (Timezone: %[1]s):
- Date: %[2]s
- Time: %[3]s
- Day: %[4]s
- ISO: %[5]s
- Timezone: %[1]s

When user says "tomorrow", add 1 day to current date.
When user says "today", use current date.

YOUR TASK:
1. Greet the user warmly and introduce yourself as their scheduling assistant
2. Ask for their name
3. Ask for the preferred date and time for the meeting
4. Ask for a meeting title (optional but encouraged)
5. ALWAYS confirm all the details before creating the event
6. Only call add_calendar_event AFTER the user confirms the details
7. After creating the event, confirm success to the user

IMPORTANT RULES:
- Be conversational and friendly
- Keep responses concise (this is voice, not text)
- Always convert relative dates (tomorrow, next Monday) to ISO format using the current date above
- When user specifies a time (e.g., "5 PM", "2:30 PM"), interpret it in the current timezone (%[1]s)
- Generate ISO datetime strings WITHOUT timezone suffix (e.g., "2026-01-15T17:00:00" for 5 PM)
- The system will automatically handle timezone conversion
- Confirm before creating any event
- If the user wants to change something, accommodate them before creating the event`,
		tzName,
		now.Format("2006-01-02"),
		now.Format("15:04:05 MST"),
		now.Format("Monday"),
		now.Format(time.RFC3339),
	)
}

func calendarToolSchema(tzName string) toolSchema {
	return toolSchema{
		Type:        "function",
		Name:        ToolAddCalendarEvent,
		Description: "Create a new event in the user's Google Calendar. Only call this AFTER confirming all details with the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"summary": map[string]any{
					"type":        "string",
					"description": "The title of the calendar event (meeting title)",
				},
				"start_time": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("Start time in ISO 8601 format WITHOUT timezone (e.g., 2026-01-15T17:00:00 for 5 PM in %[1]s). The system will interpret times in the %[1]s timezone.", tzName),
				},
				"end_time": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("End time in ISO 8601 format WITHOUT timezone (e.g., 2026-01-15T18:00:00). If not specified, defaults to 1 hour after start. Times are interpreted in %s timezone.", tzName),
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Optional description for the event",
				},
				"attendee_name": map[string]any{
					"type":        "string",
					"description": "The name of the person scheduling the meeting",
				},
			},
			"required": []string{"summary", "start_time"},
		},
	}
}
