// Package model defines data structures for the voice scheduling agent.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation session.
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "active"
	StatusCompleted ConversationStatus = "completed"
	StatusError     ConversationStatus = "error"
)

// Conversation represents one voice session between a client and the assistant.
type Conversation struct {
	SessionID string             `json:"session_id"`
	UserID    string             `json:"user_id,omitempty"`
	Status    ConversationStatus `json:"status"`
	StartedAt time.Time          `json:"started_at"`
	EndedAt   *time.Time         `json:"ended_at,omitempty"`
	ClientIP  string             `json:"client_ip,omitempty"`
	UserAgent string             `json:"user_agent,omitempty"`

	// Counters maintained by the conversation log.
	MessageCount       int `json:"message_count,omitempty"`
	CalendarEventCount int `json:"calendar_event_count,omitempty"`
}

// Role identifies the speaker of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one completed transcript line in a conversation.
type Message struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Stream sequence, populated on read.
	Sequence uint64 `json:"sequence,omitempty"`
}

// CalendarEventRecord is a calendar event created during a conversation,
// stored with provider-confirmed instants normalized to UTC.
type CalendarEventRecord struct {
	SessionID    string    `json:"session_id"`
	ProviderID   string    `json:"provider_id,omitempty"`
	Summary      string    `json:"summary"`
	Description  string    `json:"description,omitempty"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	AttendeeName string    `json:"attendee_name,omitempty"`
	HTMLLink     string    `json:"html_link,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Sequence     uint64    `json:"sequence,omitempty"`
}

// ConversationStats summarizes stored conversations.
type ConversationStats struct {
	TotalConversations  int `json:"total_conversations"`
	Active              int `json:"active"`
	Completed           int `json:"completed"`
	Errors              int `json:"errors"`
	TotalCalendarEvents int `json:"total_calendar_events"`
	TotalMessages       int `json:"total_messages"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
}

// ListMessagesResponse is the response for listing conversation messages.
type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ListCalendarEventsResponse is the response for listing calendar events.
type ListCalendarEventsResponse struct {
	Events []CalendarEventRecord `json:"events"`
	Total  int                   `json:"total"`
}
