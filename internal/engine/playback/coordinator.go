package playback

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownMessage is returned when toggling an id without a registered handle.
var ErrUnknownMessage = errors.New("no playable registered for message")

// Playable is the capability a rendering layer (waveform widget, audio
// element, terminal player) exposes for one audio message.
type Playable interface {
	Play() error
	Pause()
}

// Coordinator arbitrates audio playback so that at most one message plays.
type Coordinator struct {
	mu      sync.Mutex
	handles map[string]Playable
	current string
	onState func(id string, playing bool)
}

// NewCoordinator creates a coordinator. onState, when set, observes every
// playing flag change.
func NewCoordinator(onState func(id string, playing bool)) *Coordinator {
	return &Coordinator{
		handles: make(map[string]Playable),
		onState: onState,
	}
}

// Register attaches the playable handle for messageID, replacing any previous one.
func (c *Coordinator) Register(messageID string, p Playable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handles[messageID] = p
}

// Unregister drops the handle, pausing it first when it is the active one.
func (c *Coordinator) Unregister(messageID string) {
	c.mu.Lock()
	handle, ok := c.handles[messageID]
	delete(c.handles, messageID)
	wasCurrent := c.current == messageID
	if wasCurrent {
		c.current = ""
	}
	c.mu.Unlock()

	if ok && wasCurrent {
		handle.Pause()
		c.notify(messageID, false)
	}
}

// TogglePlay pauses messageID when it is playing, otherwise pauses the active
// message and starts messageID.
func (c *Coordinator) TogglePlay(messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, ok := c.handles[messageID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, messageID)
	}

	if c.current == messageID {
		target.Pause()
		c.current = ""
		c.notify(messageID, false)
		return nil
	}

	if c.current != "" {
		if previous, ok := c.handles[c.current]; ok {
			previous.Pause()
		}
		prevID := c.current
		c.current = ""
		c.notify(prevID, false)
	}

	if err := target.Play(); err != nil {
		return fmt.Errorf("play %s: %w", messageID, err)
	}
	c.current = messageID
	c.notify(messageID, true)
	return nil
}

// Finished clears the playing flag when playback of messageID ended on its own.
func (c *Coordinator) Finished(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == messageID {
		c.current = ""
		c.notify(messageID, false)
	}
}

// IsPlaying reports whether messageID is the active message.
func (c *Coordinator) IsPlaying(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return messageID != "" && c.current == messageID
}

// Current returns the playing message id, if any.
func (c *Coordinator) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != ""
}

// State returns the id → playing mapping for every registered message.
func (c *Coordinator) State() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := make(map[string]bool, len(c.handles))
	for id := range c.handles {
		state[id] = id == c.current
	}
	return state
}

// StopAll pauses the active message and forgets every handle.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != "" {
		if handle, ok := c.handles[c.current]; ok {
			handle.Pause()
		}
		c.notify(c.current, false)
		c.current = ""
	}
	c.handles = make(map[string]Playable)
}

// notify runs with mu held; observers must not call back into the coordinator.
func (c *Coordinator) notify(id string, playing bool) {
	if c.onState != nil {
		c.onState(id, playing)
	}
}
