package playback

import (
	"errors"
	"math/rand"
	"testing"
)

type fakePlayable struct {
	playing bool
	plays   int
	pauses  int
	err     error
}

func (f *fakePlayable) Play() error {
	if f.err != nil {
		return f.err
	}
	f.playing = true
	f.plays++
	return nil
}

func (f *fakePlayable) Pause() {
	f.playing = false
	f.pauses++
}

func activeCount(state map[string]bool) int {
	n := 0
	for _, playing := range state {
		if playing {
			n++
		}
	}
	return n
}

func TestToggleSwitchesActiveMessage(t *testing.T) {
	c := NewCoordinator(nil)
	a, b := &fakePlayable{}, &fakePlayable{}
	c.Register("a", a)
	c.Register("b", b)

	if err := c.TogglePlay("a"); err != nil {
		t.Fatalf("TogglePlay(a) err: %v", err)
	}
	if err := c.TogglePlay("b"); err != nil {
		t.Fatalf("TogglePlay(b) err: %v", err)
	}

	if a.playing || !b.playing {
		t.Fatalf("expected only b playing, a=%v b=%v", a.playing, b.playing)
	}
	if !c.IsPlaying("b") || c.IsPlaying("a") {
		t.Fatal("coordinator state disagrees with handles")
	}
}

func TestTogglePausesPlayingMessage(t *testing.T) {
	c := NewCoordinator(nil)
	a := &fakePlayable{}
	c.Register("a", a)

	_ = c.TogglePlay("a")
	_ = c.TogglePlay("a")

	if a.playing || a.pauses != 1 {
		t.Fatalf("expected a paused once, got playing=%v pauses=%d", a.playing, a.pauses)
	}
	if _, ok := c.Current(); ok {
		t.Fatal("expected nothing playing")
	}
}

func TestToggleUnknownMessage(t *testing.T) {
	c := NewCoordinator(nil)
	if err := c.TogglePlay("missing"); !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestPlayErrorLeavesNothingPlaying(t *testing.T) {
	c := NewCoordinator(nil)
	a := &fakePlayable{}
	broken := &fakePlayable{err: errors.New("decode failed")}
	c.Register("a", a)
	c.Register("broken", broken)

	_ = c.TogglePlay("a")
	if err := c.TogglePlay("broken"); err == nil {
		t.Fatal("expected play error")
	}
	if a.playing {
		t.Fatal("previous message should have been paused")
	}
	if activeCount(c.State()) != 0 {
		t.Fatal("expected no active message after a failed play")
	}
}

func TestSingleActiveAudioUnderRandomToggles(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	handles := make(map[string]*fakePlayable)
	maxActive := 0
	c := NewCoordinator(nil)
	for _, id := range ids {
		handles[id] = &fakePlayable{}
		c.Register(id, handles[id])
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		id := ids[rng.Intn(len(ids))]
		if rng.Intn(10) == 0 {
			if c.IsPlaying(id) {
				handles[id].playing = false
			}
			c.Finished(id)
		} else if err := c.TogglePlay(id); err != nil {
			t.Fatalf("TogglePlay err: %v", err)
		}

		if n := activeCount(c.State()); n > 1 {
			t.Fatalf("step %d: %d messages playing", i, n)
		}
		playing := 0
		for _, h := range handles {
			if h.playing {
				playing++
			}
		}
		if playing > maxActive {
			maxActive = playing
		}
	}
	if maxActive > 1 {
		t.Fatalf("handles reported %d simultaneous players", maxActive)
	}
}

func TestStateObserverAndStopAll(t *testing.T) {
	var events []string
	c := NewCoordinator(func(id string, playing bool) {
		if playing {
			events = append(events, "+"+id)
		} else {
			events = append(events, "-"+id)
		}
	})
	a, b := &fakePlayable{}, &fakePlayable{}
	c.Register("a", a)
	c.Register("b", b)

	_ = c.TogglePlay("a")
	_ = c.TogglePlay("b")
	c.StopAll()

	want := []string{"+a", "-a", "+b", "-b"}
	if len(events) != len(want) {
		t.Fatalf("unexpected events: %v", events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %s want %s", i, events[i], want[i])
		}
	}
	if b.playing {
		t.Fatal("StopAll should pause the active message")
	}
	if len(c.State()) != 0 {
		t.Fatal("StopAll should forget handles")
	}
}
