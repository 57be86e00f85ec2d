// Package engine composes the per-conversation components into a Session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/history"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/playback"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/recording"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/scroll"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/send"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrMissingAgent   = errors.New("agent id is required")
	ErrMissingBackend = errors.New("exchanger is required")
)

// Deps are the collaborators shared by every session of an Engine. Only
// Exchanger is mandatory.
type Deps struct {
	Exchanger  send.Exchanger
	Fetcher    history.Fetcher
	Auth       send.Authenticator
	Paywall    send.Paywall
	Draft      send.Draft
	Notifier   send.Notifier
	Microphone recording.Microphone
	Uploader   recording.Uploader
	Viewport   scroll.Viewport
	Hooks      Hooks
}

// Hooks are optional UI observers.
type Hooks struct {
	OnEvent     func(evt transcript.Event)
	OnTyping    func(typing bool)
	OnOutcome   func(outcome send.Outcome)
	OnRecording func(state speech.RecorderState)
	OnElapsed   func(seconds int)
	OnPlayback  func(messageID string, playing bool)
	OnError     func(err error)
}

// Engine opens conversation sessions. At most one session is open at a time.
type Engine struct {
	deps Deps
	cfg  config.EngineConfig

	mu      sync.Mutex
	current *Session
}

// New validates deps and creates an engine.
func New(deps Deps, cfg config.EngineConfig) (*Engine, error) {
	if deps.Exchanger == nil {
		return nil, ErrMissingBackend
	}
	if cfg.AgentID == "" {
		return nil, ErrMissingAgent
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = config.DefaultEngineConfig().PageSize
	}
	return &Engine{deps: deps, cfg: cfg}, nil
}

// Current returns the open session, if any.
func (e *Engine) Current() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Open closes the current session and opens conversationID. An empty id
// starts a new conversation that the backend creates on the first message.
// When initial is nil for a known conversation the newest page is fetched
// first; the previous session is closed even if that fetch fails.
func (e *Engine) Open(ctx context.Context, conversationID string, initial *chat.Page) (*Session, error) {
	var fetchErr error
	if initial == nil && conversationID != "" && e.deps.Fetcher != nil {
		initial, fetchErr = e.deps.Fetcher.FetchHistory(ctx, chat.HistoryQuery{
			ConversationID: conversationID,
			Limit:          e.cfg.PageSize,
		})
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current != nil {
		e.current.Close()
		e.current = nil
	}
	if fetchErr != nil {
		return nil, fmt.Errorf("load initial history: %w", fetchErr)
	}
	if initial == nil {
		initial = &chat.Page{}
	}

	sess := newSession(e.deps, e.cfg, conversationID)
	sess.seed(initial)
	e.current = sess

	log.Printf("[engine] opened conversation=%q agent=%s messages=%d hasMore=%t",
		conversationID, e.cfg.AgentID, len(initial.Messages), initial.HasMore)
	return sess, nil
}

// Close closes the current session.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.Close()
		e.current = nil
	}
}

// Session is one open conversation view.
type Session struct {
	hooks    Hooks
	store    *transcript.Store
	loader   *history.Loader
	pipeline *send.Pipeline
	recorder *recording.Recorder
	playback *playback.Coordinator
	scroll   *scroll.Controller

	microphone bool

	unsubscribe []func()
	closed      atomic.Bool
	closeOnce   sync.Once
}

func newSession(deps Deps, cfg config.EngineConfig, conversationID string) *Session {
	s := &Session{hooks: deps.Hooks, microphone: deps.Microphone != nil}

	s.store = transcript.NewStore(conversationID)
	s.loader = history.NewLoader(s.store, deps.Fetcher, cfg.PageSize)

	viewport := deps.Viewport
	if viewport == nil {
		viewport = nopViewport{}
	}
	s.scroll = scroll.NewController(viewport, s.loader, cfg.ScrollThreshold)
	s.playback = playback.NewCoordinator(deps.Hooks.OnPlayback)

	s.unsubscribe = append(s.unsubscribe, s.store.Subscribe(s.scroll.HandleEvent))
	if deps.Hooks.OnEvent != nil {
		s.unsubscribe = append(s.unsubscribe, s.store.Subscribe(deps.Hooks.OnEvent))
	}

	s.pipeline = send.NewPipeline(send.Options{
		AgentID:   cfg.AgentID,
		Store:     s.store,
		Exchanger: deps.Exchanger,
		Auth:      deps.Auth,
		Paywall:   deps.Paywall,
		Draft:     deps.Draft,
		Notifier:  deps.Notifier,
		OnTyping:  s.typingChanged,
	})

	s.recorder = recording.NewRecorder(recording.Options{
		Microphone:  deps.Microphone,
		Uploader:    deps.Uploader,
		Send:        s.sendVoice,
		MimeType:    cfg.RecordingMimeType,
		MaxDuration: cfg.MaxRecording,
		OnTick:      deps.Hooks.OnElapsed,
		OnState:     deps.Hooks.OnRecording,
		OnError:     deps.Hooks.OnError,
	})

	return s
}

func (s *Session) seed(page *chat.Page) {
	s.store.ReplaceAll(page.Messages)
	s.loader.Reset(page.HasMore, page.Cursor)
}

// ConversationID returns the conversation identity, empty until the first
// exchange of a new conversation completed.
func (s *Session) ConversationID() string {
	return s.store.ConversationID()
}

// Messages returns the transcript in display order.
func (s *Session) Messages() []chat.Message {
	return s.store.Messages()
}

// Typing reports whether an agent reply is pending.
func (s *Session) Typing() bool {
	return s.pipeline.Typing()
}

// HasMore reports whether older history may exist.
func (s *Session) HasMore() bool {
	return s.loader.HasMore()
}

// Send submits a text message.
func (s *Session) Send(ctx context.Context, text string) (send.Outcome, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	outcome, err := s.pipeline.Send(ctx, text)
	if err != nil {
		return nil, err
	}
	s.observe(outcome)
	return outcome, nil
}

func (s *Session) sendVoice(ctx context.Context, artifactURL, mimeType string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	outcome, err := s.pipeline.SendVoice(ctx, artifactURL, mimeType)
	if err != nil {
		return err
	}
	s.observe(outcome)
	if failed, ok := outcome.(send.Failed); ok {
		return failed.Err
	}
	return nil
}

func (s *Session) observe(outcome send.Outcome) {
	if s.hooks.OnOutcome != nil {
		s.hooks.OnOutcome(outcome)
	}
}

func (s *Session) typingChanged(typing bool) {
	s.scroll.TypingChanged(typing)
	if s.hooks.OnTyping != nil {
		s.hooks.OnTyping(typing)
	}
}

// StartRecording begins a voice message.
func (s *Session) StartRecording(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if !s.microphone {
		return speech.ErrDeviceUnavailable
	}
	return s.recorder.Start(ctx)
}

// StopRecording finalizes the voice message, uploads it and sends it.
func (s *Session) StopRecording(ctx context.Context) (*speech.Artifact, error) {
	return s.recorder.Stop(ctx)
}

// AbortRecording discards the active voice message.
func (s *Session) AbortRecording() {
	s.recorder.Abort()
}

// RecordingState returns the recorder phase.
func (s *Session) RecordingState() speech.RecorderState {
	return s.recorder.State()
}

// RegisterPlayable attaches an audio element to a rendered voice message.
func (s *Session) RegisterPlayable(messageID string, p playback.Playable) {
	if s.closed.Load() {
		return
	}
	s.playback.Register(messageID, p)
}

// TogglePlay toggles playback of messageID. It is a no-op once closed.
func (s *Session) TogglePlay(messageID string) error {
	if s.closed.Load() {
		return nil
	}
	return s.playback.TogglePlay(messageID)
}

// PlaybackFinished records that messageID reached its end.
func (s *Session) PlaybackFinished(messageID string) {
	s.playback.Finished(messageID)
}

// IsPlaying reports whether messageID is the active audio.
func (s *Session) IsPlaying(messageID string) bool {
	return s.playback.IsPlaying(messageID)
}

// HandleScroll forwards a viewport scroll event and reports whether it
// triggered a history load.
func (s *Session) HandleScroll(ctx context.Context) bool {
	if s.closed.Load() {
		return false
	}
	return s.scroll.HandleScroll(ctx)
}

// ContentResized forwards a completed layout pass to the scroll controller.
func (s *Session) ContentResized() {
	s.scroll.ContentResized()
}

// Close aborts recording, stops playback and detaches listeners. It is
// idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.recorder.Abort()
		s.playback.StopAll()
		for _, unsubscribe := range s.unsubscribe {
			unsubscribe()
		}
		log.Printf("[engine] closed conversation=%q", s.store.ConversationID())
	})
}

type nopViewport struct{}

func (nopViewport) Metrics() scroll.Metrics { return scroll.Metrics{} }
func (nopViewport) ScrollTo(float64)        {}
