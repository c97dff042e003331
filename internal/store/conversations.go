package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/voicecal/voice-scheduler/internal/model"
)

const (
	// StreamName is the name of the conversation log stream.
	StreamName = "CONVERSATIONS"

	// SubjectPrefix is the prefix for all conversation subjects.
	SubjectPrefix = "conv"

	// conversationsBucket holds conversation lifecycle records.
	conversationsBucket = "conversations"
)

// ConversationLog is the append-only conversation store: lifecycle records in
// a KV bucket, transcript messages and calendar events in a JetStream stream.
type ConversationLog struct {
	client *Client
	kv     jetstream.KeyValue
}

// NewConversationLog ensures the stream and lifecycle bucket exist.
func NewConversationLog(ctx context.Context, client *Client) (*ConversationLog, error) {
	js := client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        StreamName,
			Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      365 * 24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Compression: jetstream.S2Compression,
			Description: "Voice conversation transcripts and calendar events",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	kv, err := client.ensureBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      conversationsBucket,
		Description: "Conversation lifecycle records",
	})
	if err != nil {
		return nil, err
	}

	return &ConversationLog{client: client, kv: kv}, nil
}

// MessageSubject returns the subject for a transcript message.
func MessageSubject(sessionID string, role model.Role) string {
	return fmt.Sprintf("%s.%s.msg.%s", SubjectPrefix, sessionID, role)
}

// CalendarEventSubject returns the subject for a recorded calendar event.
func CalendarEventSubject(sessionID string) string {
	return fmt.Sprintf("%s.%s.event.calendar", SubjectPrefix, sessionID)
}

// Create records a new active conversation.
func (l *ConversationLog) Create(ctx context.Context, conv *model.Conversation) error {
	conv.Status = model.StatusActive
	conv.StartedAt = time.Now().UTC()

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if _, err := l.kv.Put(ctx, conv.SessionID, data); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

// Get returns a conversation record by session id.
func (l *ConversationLog) Get(ctx context.Context, sessionID string) (*model.Conversation, error) {
	entry, err := l.kv.Get(ctx, sessionID)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv model.Conversation
	if err := json.Unmarshal(entry.Value(), &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// End marks a conversation completed or errored. Ending an already-ended or
// unknown conversation is a no-op.
func (l *ConversationLog) End(ctx context.Context, sessionID string, status model.ConversationStatus) error {
	conv, err := l.Get(ctx, sessionID)
	if err != nil || conv == nil {
		return err
	}
	if conv.EndedAt != nil {
		return nil
	}

	now := time.Now().UTC()
	conv.Status = status
	conv.EndedAt = &now
	return l.put(ctx, conv)
}

// AppendMessage appends one completed transcript line to the log.
func (l *ConversationLog) AppendMessage(ctx context.Context, sessionID string, role model.Role, text string) error {
	msg := model.Message{
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if _, err := l.client.JetStream().Publish(ctx, MessageSubject(sessionID, role), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	l.bumpCounters(ctx, sessionID, 1, 0)
	return nil
}

// AppendCalendarEvent records a calendar event created during the conversation.
func (l *ConversationLog) AppendCalendarEvent(ctx context.Context, rec *model.CalendarEventRecord) error {
	rec.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal calendar event: %w", err)
	}
	if _, err := l.client.JetStream().Publish(ctx, CalendarEventSubject(rec.SessionID), data); err != nil {
		return fmt.Errorf("failed to publish calendar event: %w", err)
	}

	l.bumpCounters(ctx, rec.SessionID, 0, 1)
	return nil
}

// Messages returns the transcript of one conversation in stream order.
func (l *ConversationLog) Messages(ctx context.Context, sessionID string, limit int) ([]model.Message, bool, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	filter := fmt.Sprintf("%s.%s.msg.>", SubjectPrefix, sessionID)
	raw, err := l.fetch(ctx, filter, limit)
	if err != nil {
		return nil, false, err
	}

	messages := make([]model.Message, 0, len(raw))
	for _, rm := range raw {
		var msg model.Message
		if err := json.Unmarshal(rm.data, &msg); err != nil {
			continue
		}
		msg.Sequence = rm.seq
		messages = append(messages, msg)
	}
	return messages, len(messages) == limit, nil
}

// List returns conversation records, optionally filtered by user, most recent
// first.
func (l *ConversationLog) List(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	all, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	filtered := all[:0]
	for _, conv := range all {
		if userID == "" || conv.UserID == userID {
			filtered = append(filtered, conv)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	if offset >= len(filtered) {
		return []model.Conversation{}, nil
	}
	filtered = filtered[offset:]
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

// CalendarEvents returns recorded calendar events, optionally filtered by
// user, most recent first.
func (l *ConversationLog) CalendarEvents(ctx context.Context, userID string, limit int) ([]model.CalendarEventRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var owned map[string]bool
	if userID != "" {
		convs, err := l.List(ctx, userID, 200, 0)
		if err != nil {
			return nil, err
		}
		owned = make(map[string]bool, len(convs))
		for _, conv := range convs {
			owned[conv.SessionID] = true
		}
	}

	filter := fmt.Sprintf("%s.*.event.calendar", SubjectPrefix)
	raw, err := l.fetch(ctx, filter, 1000)
	if err != nil {
		return nil, err
	}

	events := make([]model.CalendarEventRecord, 0, len(raw))
	for _, rm := range raw {
		var rec model.CalendarEventRecord
		if err := json.Unmarshal(rm.data, &rec); err != nil {
			continue
		}
		if owned != nil && !owned[rec.SessionID] {
			continue
		}
		rec.Sequence = rm.seq
		events = append(events, rec)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// Stats summarizes stored conversations, optionally for one user.
func (l *ConversationLog) Stats(ctx context.Context, userID string) (*model.ConversationStats, error) {
	all, err := l.scan(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.ConversationStats{}
	for _, conv := range all {
		if userID != "" && conv.UserID != userID {
			continue
		}
		stats.TotalConversations++
		switch conv.Status {
		case model.StatusActive:
			stats.Active++
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusError:
			stats.Errors++
		}
		stats.TotalMessages += conv.MessageCount
		stats.TotalCalendarEvents += conv.CalendarEventCount
	}
	return stats, nil
}

func (l *ConversationLog) put(ctx context.Context, conv *model.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}
	if _, err := l.kv.Put(ctx, conv.SessionID, data); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

// bumpCounters updates per-conversation counters. Counter drift under
// concurrent writers is tolerated; the log entries themselves are the source
// of truth.
func (l *ConversationLog) bumpCounters(ctx context.Context, sessionID string, msgs, events int) {
	conv, err := l.Get(ctx, sessionID)
	if err != nil || conv == nil {
		return
	}
	conv.MessageCount += msgs
	conv.CalendarEventCount += events
	if err := l.put(ctx, conv); err != nil {
		l.client.logger.Warn("failed to update conversation counters",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (l *ConversationLog) scan(ctx context.Context) ([]model.Conversation, error) {
	keys, err := l.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]model.Conversation, 0, len(keys))
	for _, key := range keys {
		entry, err := l.kv.Get(ctx, key)
		if err != nil {
			continue
		}
		var conv model.Conversation
		if err := json.Unmarshal(entry.Value(), &conv); err != nil {
			continue
		}
		out = append(out, conv)
	}
	return out, nil
}

type rawMessage struct {
	data []byte
	seq  uint64
}

// fetch reads up to limit messages matching filter via an ephemeral consumer.
func (l *ConversationLog) fetch(ctx context.Context, filter string, limit int) ([]rawMessage, error) {
	consumer, err := l.client.JetStream().CreateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		FilterSubject: filter,
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var out []rawMessage
	for msg := range batch.Messages() {
		rm := rawMessage{data: msg.Data()}
		if meta, err := msg.Metadata(); err == nil {
			rm.seq = meta.Sequence.Stream
		}
		out = append(out, rm)
	}
	if batch.Error() != nil && !errors.Is(batch.Error(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("batch error: %w", batch.Error())
	}
	return out, nil
}
