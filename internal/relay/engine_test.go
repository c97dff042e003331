package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/voicecal/voice-scheduler/internal/calendar"
	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
)

type fakeTransport struct {
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
}

func (t *fakeTransport) send(tb testing.TB, v any) {
	tb.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal test input: %v", err)
	}
	t.in <- data
}

func (t *fakeTransport) sendRaw(raw string) {
	t.in <- []byte(raw)
}

func (t *fakeTransport) ReadMessage() ([]byte, error) {
	select {
	case data := <-t.in:
		return data, nil
	case <-t.done:
		return nil, io.EOF
	}
}

func (t *fakeTransport) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.writes = append(t.writes, data)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// writtenTypes decodes the "type" field of every recorded write.
func (t *fakeTransport) writtenTypes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	types := make([]string, 0, len(t.writes))
	for _, data := range t.writes {
		var env struct {
			Type string `json:"type"`
		}
		json.Unmarshal(data, &env)
		types = append(types, env.Type)
	}
	return types
}

func (t *fakeTransport) countType(typ string) int {
	n := 0
	for _, got := range t.writtenTypes() {
		if got == typ {
			n++
		}
	}
	return n
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(tb testing.TB, cond func() bool, msg string) {
	tb.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	tb.Fatalf("timed out waiting for %s", msg)
}

type memoryRecorder struct {
	mu       sync.Mutex
	messages []model.Message
	events   []*model.CalendarEventRecord
}

func (r *memoryRecorder) AppendMessage(_ context.Context, sessionID string, role model.Role, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, model.Message{SessionID: sessionID, Role: role, Content: text})
	return nil
}

func (r *memoryRecorder) AppendCalendarEvent(_ context.Context, rec *model.CalendarEventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rec)
	return nil
}

func (r *memoryRecorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *memoryRecorder) eventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type engineHarness struct {
	client   *fakeTransport
	upstream *fakeTransport
	recorder *memoryRecorder
	creator  *stubCreator
	engine   *Engine
	runErr   chan error
	cancel   context.CancelFunc
}

func startEngine(t *testing.T, result calendar.Result, cred *oauth2.Token) *engineHarness {
	t.Helper()
	log := logger.NewNop()
	tz := timezone.New("Asia/Kolkata", log)

	h := &engineHarness{
		client:   newFakeTransport(),
		upstream: newFakeTransport(),
		recorder: &memoryRecorder{},
		creator:  &stubCreator{result: result},
		runErr:   make(chan error, 1),
	}
	h.engine = NewEngine(Config{
		SessionID:  "sess-test",
		Client:     h.client,
		Upstream:   h.upstream,
		Identity:   identity.Identity{UserID: "u1", Email: "u@example.com", Credential: cred},
		Dispatcher: NewDispatcher(h.creator, log),
		Recorder:   h.recorder,
		TZ:         tz,
		Logger:     log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.runErr <- h.engine.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.runErr:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return h
}

func TestEngineStartConfiguresSession(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.client.send(t, ClientFrame{Type: FrameStart})
	waitFor(t, func() bool { return h.upstream.countType("session.update") == 1 }, "session.update")

	h.upstream.mu.Lock()
	raw := h.upstream.writes[0]
	h.upstream.mu.Unlock()

	var ev sessionUpdateEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode session.update: %v", err)
	}
	if ev.Session.Voice != "alloy" {
		t.Fatalf("voice = %q, want alloy", ev.Session.Voice)
	}
	if ev.Session.InputAudioFormat != "pcm16" || ev.Session.OutputAudioFormat != "pcm16" {
		t.Fatalf("audio formats = %q/%q", ev.Session.InputAudioFormat, ev.Session.OutputAudioFormat)
	}
	if ev.Session.TurnDetection.Type != "server_vad" || ev.Session.TurnDetection.SilenceDurationMS != 500 {
		t.Fatalf("unexpected turn detection: %+v", ev.Session.TurnDetection)
	}
	if len(ev.Session.Tools) != 1 || ev.Session.Tools[0].Name != ToolAddCalendarEvent {
		t.Fatalf("unexpected tools: %+v", ev.Session.Tools)
	}
}

func TestEngineInitialResponseOnce(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.upstream.send(t, map[string]any{"type": EventSessionCreated})
	waitFor(t, func() bool { return h.client.countType("status") == 1 }, "status frame")

	h.upstream.send(t, map[string]any{"type": EventSessionUpdated})
	h.upstream.send(t, map[string]any{"type": EventSessionUpdated})
	waitFor(t, func() bool { return h.upstream.countType("response.create") >= 1 }, "response.create")

	// Give the second session.updated a chance to misbehave before checking.
	time.Sleep(50 * time.Millisecond)
	if got := h.upstream.countType("response.create"); got != 1 {
		t.Fatalf("response.create sent %d times, want 1", got)
	}
}

func TestEngineAudioForwarding(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.client.send(t, ClientFrame{Type: FrameAudio, Audio: "UklGRg=="})
	waitFor(t, func() bool { return h.upstream.countType("input_audio_buffer.append") == 1 }, "audio append")

	h.client.send(t, ClientFrame{Type: FrameStop})
	waitFor(t, func() bool { return h.upstream.countType("input_audio_buffer.commit") == 1 }, "audio commit")

	h.upstream.send(t, map[string]any{"type": EventResponseCreated})
	h.upstream.send(t, map[string]any{"type": EventAudioDelta, "delta": "c29tZSBhdWRpbw=="})
	waitFor(t, func() bool { return h.client.countType("audio") == 1 }, "client audio frame")

	if got := h.client.countType("status"); got != 1 {
		t.Fatalf("status frames = %d, want 1", got)
	}
	if h.engine.State() != StateSpeaking {
		t.Fatalf("state = %d, want speaking", h.engine.State())
	}
}

func TestEngineIgnoresUnknownAndMalformedFrames(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.client.sendRaw(`{broken`)
	h.client.send(t, ClientFrame{Type: "telemetry"})
	h.client.send(t, ClientFrame{Type: FrameAudio, Audio: "AA=="})

	waitFor(t, func() bool { return h.upstream.countType("input_audio_buffer.append") == 1 }, "audio after junk")
	if got := len(h.upstream.writtenTypes()); got != 1 {
		t.Fatalf("junk frames produced upstream writes: %v", h.upstream.writtenTypes())
	}
}

func TestEngineToolCallBatching(t *testing.T) {
	h := startEngine(t, calendar.Result{
		Success: true,
		EventID: "ev-9",
		Summary: "Standup",
		Start:   "2026-01-15T17:00:00+05:30",
		End:     "2026-01-15T18:00:00+05:30",
	}, &oauth2.Token{AccessToken: "tok"})

	h.upstream.send(t, map[string]any{
		"type": EventResponseDone,
		"response": map[string]any{
			"output": []map[string]any{
				{"type": "message"},
				{"type": "function_call", "call_id": "c1", "name": ToolAddCalendarEvent,
					"arguments": `{"summary":"Standup","start_time":"2026-01-15T17:00:00"}`},
				{"type": "function_call", "call_id": "c2", "name": ToolAddCalendarEvent,
					"arguments": `{"summary":"Retro","start_time":"2026-01-16T17:00:00"}`},
			},
		},
	})

	waitFor(t, func() bool { return h.upstream.countType("response.create") >= 1 }, "continuation response")

	if got := h.upstream.countType("conversation.item.create"); got != 2 {
		t.Fatalf("function_call_output items = %d, want 2", got)
	}
	if got := h.upstream.countType("response.create"); got != 1 {
		t.Fatalf("response.create sent %d times for 2 calls, want 1", got)
	}
	if got := h.client.countType("function_result"); got != 2 {
		t.Fatalf("client function_result frames = %d, want 2", got)
	}
	if h.creator.calls != 2 {
		t.Fatalf("executor calls = %d, want 2", h.creator.calls)
	}
	if got := h.recorder.eventCount(); got != 2 {
		t.Fatalf("recorded calendar events = %d, want 2", got)
	}

	h.recorder.mu.Lock()
	rec := h.recorder.events[0]
	h.recorder.mu.Unlock()
	want := time.Date(2026, 1, 15, 11, 30, 0, 0, time.UTC)
	if !rec.StartTime.Equal(want) {
		t.Fatalf("recorded start = %v, want %v", rec.StartTime, want)
	}
	if rec.ProviderID != "ev-9" {
		t.Fatalf("provider id = %q", rec.ProviderID)
	}
}

func TestEngineResponseDoneWithoutCalls(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.upstream.send(t, map[string]any{
		"type": EventResponseDone,
		"response": map[string]any{
			"output": []map[string]any{{"type": "message"}},
		},
	})
	// A turn is also done when the response body carries no output at all.
	h.upstream.send(t, map[string]any{"type": EventResponseDone})

	waitFor(t, func() bool { return h.engine.State() == StateListening }, "listening state")
	time.Sleep(50 * time.Millisecond)
	if got := h.upstream.countType("response.create"); got != 0 {
		t.Fatalf("response.create sent %d times for a turn without calls, want 0", got)
	}
	if h.creator.calls != 0 {
		t.Fatalf("executor called %d times, want 0", h.creator.calls)
	}
}

func TestEngineTranscriptRecording(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.upstream.send(t, map[string]any{"type": EventTranscriptDelta, "delta": "Hel"})
	h.upstream.send(t, map[string]any{"type": EventTranscriptDone, "transcript": "Hello there"})
	h.upstream.send(t, map[string]any{
		"type":       EventInputTranscriptDone,
		"transcript": "Book a meeting tomorrow at 5",
	})

	waitFor(t, func() bool { return h.recorder.messageCount() == 2 }, "recorded messages")

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	if h.recorder.messages[0].Role != model.RoleAssistant || h.recorder.messages[0].Content != "Hello there" {
		t.Fatalf("unexpected first message: %+v", h.recorder.messages[0])
	}
	if h.recorder.messages[1].Role != model.RoleUser {
		t.Fatalf("unexpected second message: %+v", h.recorder.messages[1])
	}
	if got := h.client.countType("transcript"); got != 1 {
		t.Fatalf("transcript delta frames = %d, want 1", got)
	}
	if got := h.client.countType("transcript_done"); got != 2 {
		t.Fatalf("transcript_done frames = %d, want 2", got)
	}
}

func TestEngineForwardsUpstreamErrors(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.upstream.send(t, map[string]any{
		"type":  EventError,
		"error": map[string]any{"message": "buffer too small"},
	})
	waitFor(t, func() bool { return h.client.countType("error") == 1 }, "error frame")

	// The session must survive an upstream error event.
	h.upstream.send(t, map[string]any{"type": EventAudioDelta, "delta": "AA=="})
	waitFor(t, func() bool { return h.client.countType("audio") == 1 }, "audio after error")
}

func TestEngineClientCloseEndsRun(t *testing.T) {
	h := startEngine(t, calendar.Result{}, nil)

	h.client.Close()
	select {
	case err := <-h.runErr:
		if !errors.Is(err, ErrClientGone) {
			t.Fatalf("run error = %v, want ErrClientGone", err)
		}
		h.runErr <- err
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after client close")
	}
}
