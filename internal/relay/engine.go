package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voicecal/voice-scheduler/internal/identity"
	"github.com/voicecal/voice-scheduler/internal/model"
	"github.com/voicecal/voice-scheduler/internal/timezone"
	"github.com/voicecal/voice-scheduler/pkg/logger"
	"github.com/voicecal/voice-scheduler/pkg/metrics"
)

// State is the engine's coarse lifecycle position, readable concurrently.
type State int32

const (
	StateIdle State = iota
	StateReady
	StateListening
	StateSpeaking
	StateToolPending
)

// ErrClientGone marks termination caused by the browser side closing, which
// callers treat as a completed conversation rather than a failure.
var ErrClientGone = errors.New("client disconnected")

// ConversationRecorder persists transcript lines and created events. Recording
// failures are logged and never terminate the session.
type ConversationRecorder interface {
	AppendMessage(ctx context.Context, sessionID string, role model.Role, text string) error
	AppendCalendarEvent(ctx context.Context, rec *model.CalendarEventRecord) error
}

// Config wires one engine run.
type Config struct {
	SessionID  string
	Client     Transport
	Upstream   Transport
	Identity   identity.Identity
	Dispatcher *Dispatcher
	Recorder   ConversationRecorder
	TZ         *timezone.Normalizer
	Logger     *logger.Logger
}

// Engine bridges one client connection and one upstream realtime session. It
// runs two pumps, one per direction, and executes tool calls between turns.
type Engine struct {
	cfg        Config
	state      atomic.Int32
	configured atomic.Bool
}

// NewEngine creates an engine for a single session.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// State returns the engine's current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Run pumps both directions until either side disconnects or ctx is
// canceled. It closes both transports on exit. A client-initiated close
// returns an error wrapping ErrClientGone.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Transport reads have no context plumbing, so termination is driven by
	// closing the connections once the group context dies.
	go func() {
		<-ctx.Done()
		e.cfg.Client.Close()
		e.cfg.Upstream.Close()
	}()

	g.Go(func() error { return e.clientPump(ctx) })
	g.Go(func() error { return e.upstreamPump(ctx) })

	err := g.Wait()
	if errors.Is(err, ErrClientGone) {
		return err
	}
	if err != nil {
		e.cfg.Logger.Warn("relay session ended with error",
			zap.String("session_id", e.cfg.SessionID),
			zap.Error(err),
		)
	}
	return err
}

// clientPump forwards browser frames upstream. Malformed and unknown frames
// are dropped so a misbehaving client cannot take the session down.
func (e *Engine) clientPump(ctx context.Context) error {
	for {
		data, err := e.cfg.Client.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrClientGone, err)
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			e.cfg.Logger.Debug("dropping malformed client frame", zap.Error(err))
			continue
		}

		switch frame.Type {
		case FrameAudio:
			if err := e.cfg.Upstream.WriteJSON(audioAppend(frame.Audio)); err != nil {
				return fmt.Errorf("forward audio: %w", err)
			}
		case FrameStart:
			now := e.cfg.TZ.Now()
			if err := e.cfg.Upstream.WriteJSON(SessionUpdate(now, e.cfg.TZ.Name())); err != nil {
				return fmt.Errorf("configure session: %w", err)
			}
		case FrameStop:
			if err := e.cfg.Upstream.WriteJSON(audioCommit()); err != nil {
				return fmt.Errorf("commit audio: %w", err)
			}
		default:
			e.cfg.Logger.Debug("ignoring unknown client frame", zap.String("type", frame.Type))
		}
	}
}

// upstreamPump forwards realtime events to the browser and runs tool calls
// when a turn completes.
func (e *Engine) upstreamPump(ctx context.Context) error {
	for {
		data, err := e.cfg.Upstream.ReadMessage()
		if err != nil {
			return fmt.Errorf("upstream read: %w", err)
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			e.cfg.Logger.Warn("dropping undecodable upstream event", zap.Error(err))
			continue
		}
		metrics.UpstreamEventsTotal.WithLabelValues(ev.Type).Inc()

		switch ev.Type {
		case EventSessionCreated:
			e.setState(StateReady)
			if err := e.cfg.Client.WriteJSON(NewStatusFrame("ready", "Session ready")); err != nil {
				return fmt.Errorf("status write: %w", err)
			}

		case EventSessionUpdated:
			// The first acknowledgement kicks off the greeting turn. Later
			// session.updated events must not spawn extra responses.
			if e.configured.CompareAndSwap(false, true) {
				e.setState(StateListening)
				if err := e.cfg.Upstream.WriteJSON(responseCreate("text", "audio")); err != nil {
					return fmt.Errorf("initial response: %w", err)
				}
			}

		case EventResponseCreated:
			e.setState(StateSpeaking)
			if err := e.cfg.Client.WriteJSON(NewStatusFrame("speaking", "Assistant speaking")); err != nil {
				return fmt.Errorf("status write: %w", err)
			}

		case EventAudioDelta:
			if err := e.cfg.Client.WriteJSON(audioFrame(ev.Delta)); err != nil {
				return fmt.Errorf("audio write: %w", err)
			}

		case EventTranscriptDelta:
			if err := e.cfg.Client.WriteJSON(transcriptFrame("assistant", ev.Delta)); err != nil {
				return fmt.Errorf("transcript write: %w", err)
			}

		case EventTranscriptDone:
			if err := e.cfg.Client.WriteJSON(transcriptDoneFrame("assistant", ev.Transcript)); err != nil {
				return fmt.Errorf("transcript write: %w", err)
			}
			e.record(ctx, model.RoleAssistant, ev.Transcript)

		case EventInputTranscriptDone:
			if err := e.cfg.Client.WriteJSON(transcriptDoneFrame("user", ev.Transcript)); err != nil {
				return fmt.Errorf("transcript write: %w", err)
			}
			e.record(ctx, model.RoleUser, ev.Transcript)

		case EventResponseDone:
			if err := e.finishTurn(ctx, ev.Response); err != nil {
				return err
			}

		case EventError:
			msg := "upstream error"
			if ev.Error != nil {
				msg = ev.Error.Message
			}
			e.cfg.Logger.Warn("upstream reported error",
				zap.String("session_id", e.cfg.SessionID),
				zap.String("message", msg),
			)
			if err := e.cfg.Client.WriteJSON(NewErrorFrame(msg)); err != nil {
				return fmt.Errorf("error write: %w", err)
			}
		}
	}
}

// finishTurn executes any tool calls the completed turn requested. All
// outputs are queued before a single follow-up response is requested, so N
// calls produce exactly one continuation turn.
func (e *Engine) finishTurn(ctx context.Context, resp *ResponseBody) error {
	calls := resp.ToolCalls()
	if len(calls) == 0 {
		return e.becomeListening()
	}

	e.setState(StateToolPending)
	for _, call := range calls {
		result := e.cfg.Dispatcher.Dispatch(ctx, call, e.cfg.Identity.Credential)

		if err := e.cfg.Client.WriteJSON(functionResultFrame(result.Name, result.Output)); err != nil {
			return fmt.Errorf("function result write: %w", err)
		}
		e.recordCalendarEvent(ctx, result)

		payload, err := json.Marshal(result.Output)
		if err != nil {
			return fmt.Errorf("encode function output: %w", err)
		}
		if err := e.cfg.Upstream.WriteJSON(functionOutputItem(result.CallID, string(payload))); err != nil {
			return fmt.Errorf("function output write: %w", err)
		}
	}
	if err := e.cfg.Upstream.WriteJSON(responseCreate()); err != nil {
		return fmt.Errorf("continuation response: %w", err)
	}
	return e.becomeListening()
}

func (e *Engine) becomeListening() error {
	e.setState(StateListening)
	if err := e.cfg.Client.WriteJSON(NewStatusFrame("listening", "Listening")); err != nil {
		return fmt.Errorf("status write: %w", err)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, role model.Role, text string) {
	if e.cfg.Recorder == nil || text == "" {
		return
	}
	if err := e.cfg.Recorder.AppendMessage(ctx, e.cfg.SessionID, role, text); err != nil {
		e.cfg.Logger.Warn("failed to record message",
			zap.String("session_id", e.cfg.SessionID),
			zap.Error(err),
		)
	}
}

func (e *Engine) recordCalendarEvent(ctx context.Context, result ToolResult) {
	if e.cfg.Recorder == nil || result.Calendar == nil || !result.Calendar.Success {
		return
	}

	now := e.cfg.TZ.Now()
	start, _ := e.cfg.TZ.NormalizeOr(result.Calendar.Start, now)
	end, _ := e.cfg.TZ.NormalizeOr(result.Calendar.End, start.Add(timezone.DefaultEventDuration))

	rec := &model.CalendarEventRecord{
		SessionID:  e.cfg.SessionID,
		ProviderID: result.Calendar.EventID,
		Summary:    result.Calendar.Summary,
		StartTime:  start.UTC(),
		EndTime:    end.UTC(),
		HTMLLink:   result.Calendar.HTMLLink,
		CreatedAt:  time.Now().UTC(),
	}
	if result.Draft != nil {
		rec.Description = result.Draft.Description
		rec.AttendeeName = result.Draft.AttendeeName
	}
	if err := e.cfg.Recorder.AppendCalendarEvent(ctx, rec); err != nil {
		e.cfg.Logger.Warn("failed to record calendar event",
			zap.String("session_id", e.cfg.SessionID),
			zap.Error(err),
		)
	}
}
