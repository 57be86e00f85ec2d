package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

const (
	defaultMaxDuration  = 60 * time.Second
	defaultTickInterval = time.Second
	drainTimeout        = 2 * time.Second
)

// ErrEmptyRecording is returned when capture produced no audio.
var ErrEmptyRecording = errors.New("recording captured no audio")

// Stream is an acquired capture handle. Chunks is closed once capture has
// stopped and every buffered chunk was delivered. Close releases the hardware.
type Stream interface {
	Chunks() <-chan []byte
	Stop()
	Close() error
}

// Microphone acquires capture streams. Open must fail fast with
// speech.ErrPermissionDenied or speech.ErrDeviceUnavailable.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// Uploader turns a finalized artifact into a URL the backend can reference.
type Uploader interface {
	Upload(ctx context.Context, artifact *speech.Artifact) (string, error)
}

// VoiceSender hands an uploaded artifact to the send pipeline.
type VoiceSender func(ctx context.Context, artifactURL, mimeType string) error

// Options configures a Recorder.
type Options struct {
	Microphone   Microphone
	Uploader     Uploader
	Send         VoiceSender
	MimeType     string
	MaxDuration  time.Duration
	TickInterval time.Duration
	// OnTick receives the elapsed seconds, including the reset to zero.
	OnTick func(elapsed int)
	// OnState observes state machine transitions.
	OnState func(state speech.RecorderState)
	// OnError receives failures of recordings finalized by the duration cap.
	OnError func(err error)
}

type session struct {
	stream      Stream
	chunks      [][]byte
	elapsed     int
	startedAt   time.Time
	ctx         context.Context
	stopTick    chan struct{}
	collected   chan struct{}
	capTimer    *time.Timer
	releaseOnce sync.Once
}

func (s *session) release() {
	s.releaseOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			log.Printf("[recording] release stream failed: %v", err)
		}
	})
}

// Recorder captures one voice message at a time: idle → recording →
// finalizing → idle.
type Recorder struct {
	opts Options

	mu      sync.Mutex
	state   speech.RecorderState
	attempt uint64
	current *session
}

// NewRecorder creates an idle recorder.
func NewRecorder(opts Options) *Recorder {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = defaultMaxDuration
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.MimeType == "" {
		opts.MimeType = "audio/webm"
	}
	return &Recorder{opts: opts, state: speech.StateIdle}
}

// State returns the current phase.
func (r *Recorder) State() speech.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Elapsed returns the seconds recorded so far.
func (r *Recorder) Elapsed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0
	}
	return r.current.elapsed
}

// Start acquires the microphone and begins buffering audio. Calling Start
// while a recording is active is a no-op.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != speech.StateIdle {
		r.mu.Unlock()
		return nil
	}
	r.state = speech.StateRecording
	r.attempt++
	attempt := r.attempt
	r.mu.Unlock()
	r.notifyState(speech.StateRecording)

	stream, err := r.opts.Microphone.Open(ctx)
	if err != nil {
		r.mu.Lock()
		reset := r.attempt == attempt
		if reset {
			r.state = speech.StateIdle
		}
		r.mu.Unlock()
		if reset {
			r.notifyState(speech.StateIdle)
		}
		return classify(err)
	}

	sess := &session{
		stream:    stream,
		startedAt: time.Now(),
		ctx:       context.WithoutCancel(ctx),
		stopTick:  make(chan struct{}),
		collected: make(chan struct{}),
	}

	r.mu.Lock()
	if r.attempt != attempt || r.state != speech.StateRecording {
		// aborted while the microphone was being acquired
		r.mu.Unlock()
		stream.Stop()
		sess.release()
		return nil
	}
	r.current = sess
	sess.capTimer = time.AfterFunc(r.opts.MaxDuration, func() {
		if _, err := r.finalize(sess.ctx, sess); err != nil {
			log.Printf("[recording] finalize at duration cap failed: %v", err)
			if r.opts.OnError != nil {
				r.opts.OnError(err)
			}
		}
	})
	r.mu.Unlock()

	go r.collect(sess)
	go r.tick(sess)

	log.Printf("[recording] started (cap %s)", r.opts.MaxDuration)
	return nil
}

// Stop finalizes the active recording, uploads it and hands it to the send
// pipeline. It returns nil, nil when nothing is recording.
func (r *Recorder) Stop(ctx context.Context) (*speech.Artifact, error) {
	r.mu.Lock()
	sess := r.current
	r.mu.Unlock()
	if sess == nil {
		return nil, nil
	}
	return r.finalize(ctx, sess)
}

// Abort discards the active recording without sending anything.
func (r *Recorder) Abort() {
	r.mu.Lock()
	switch {
	case r.state == speech.StateIdle, r.state == speech.StateFinalizing:
		r.mu.Unlock()
		return
	case r.current == nil:
		// still acquiring; Start releases the stream when Open returns
		r.attempt++
		r.state = speech.StateIdle
		r.mu.Unlock()
		r.notifyState(speech.StateIdle)
		return
	}
	sess := r.current
	r.current = nil
	r.state = speech.StateIdle
	r.mu.Unlock()

	sess.capTimer.Stop()
	close(sess.stopTick)
	sess.stream.Stop()
	sess.release()

	r.notifyState(speech.StateIdle)
	r.notifyTick(0)
	log.Printf("[recording] aborted")
}

func (r *Recorder) finalize(ctx context.Context, sess *session) (*speech.Artifact, error) {
	r.mu.Lock()
	if r.current != sess || r.state != speech.StateRecording {
		r.mu.Unlock()
		return nil, nil
	}
	r.state = speech.StateFinalizing
	r.mu.Unlock()
	r.notifyState(speech.StateFinalizing)

	sess.capTimer.Stop()
	close(sess.stopTick)

	artifact := r.produce(ctx, sess)

	r.mu.Lock()
	r.current = nil
	r.state = speech.StateIdle
	r.mu.Unlock()
	r.notifyState(speech.StateIdle)
	r.notifyTick(0)

	if artifact.Size() == 0 {
		return nil, ErrEmptyRecording
	}
	log.Printf("[recording] finalized %s of %s audio", humanize.Bytes(uint64(artifact.Size())), artifact.Duration.Round(time.Second))

	if r.opts.Uploader == nil {
		return artifact, nil
	}
	url, err := r.opts.Uploader.Upload(ctx, artifact)
	if err != nil {
		return artifact, fmt.Errorf("upload voice message: %w", err)
	}
	if r.opts.Send != nil {
		if err := r.opts.Send(ctx, url, artifact.MimeType); err != nil {
			return artifact, fmt.Errorf("send voice message: %w", err)
		}
	}
	return artifact, nil
}

// produce stops capture and concatenates the buffered chunks. The stream is
// released on every path out of it.
func (r *Recorder) produce(ctx context.Context, sess *session) *speech.Artifact {
	defer sess.release()

	sess.stream.Stop()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-sess.collected:
	case <-ctx.Done():
	case <-timer.C:
		log.Printf("[recording] capture did not drain within %s", drainTimeout)
	}

	r.mu.Lock()
	data := bytes.Join(sess.chunks, nil)
	r.mu.Unlock()

	return &speech.Artifact{
		Data:      data,
		MimeType:  r.opts.MimeType,
		Duration:  time.Since(sess.startedAt),
		CreatedAt: time.Now(),
	}
}

func (r *Recorder) collect(sess *session) {
	defer close(sess.collected)
	for chunk := range sess.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		r.mu.Lock()
		sess.chunks = append(sess.chunks, chunk)
		r.mu.Unlock()
	}
}

func (r *Recorder) tick(sess *session) {
	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stopTick:
			return
		case <-ticker.C:
			r.mu.Lock()
			sess.elapsed++
			elapsed := sess.elapsed
			r.mu.Unlock()
			r.notifyTick(elapsed)
		}
	}
}

func (r *Recorder) notifyState(state speech.RecorderState) {
	if r.opts.OnState != nil {
		r.opts.OnState(state)
	}
}

func (r *Recorder) notifyTick(elapsed int) {
	if r.opts.OnTick != nil {
		r.opts.OnTick(elapsed)
	}
}

func classify(err error) error {
	if errors.Is(err, speech.ErrPermissionDenied) || errors.Is(err, speech.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", speech.ErrDeviceUnavailable, err)
}
