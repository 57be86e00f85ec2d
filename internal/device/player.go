package device

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Fetcher downloads an attachment.
type Fetcher func(ctx context.Context, url string) ([]byte, string, error)

// bytesPerSecond approximates a 32 kbit/s voice codec.
const bytesPerSecond = 4000

// Player is a terminal Playable: it fetches the clip, announces it and reports
// completion after the clip's estimated duration.
type Player struct {
	url      string
	fetch    Fetcher
	out      io.Writer
	finished func()

	mu    sync.Mutex
	data  []byte
	timer *time.Timer
}

// NewPlayer creates a player for the clip at url. finished runs when playback
// reaches the end.
func NewPlayer(url string, fetch Fetcher, out io.Writer, finished func()) *Player {
	return &Player{url: url, fetch: fetch, out: out, finished: finished}
}

// Play implements playback.Playable.
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data == nil {
		data, _, err := p.fetch(context.Background(), p.url)
		if err != nil {
			return fmt.Errorf("load voice message: %w", err)
		}
		p.data = data
	}

	length := time.Duration(len(p.data)) * time.Second / bytesPerSecond
	fmt.Fprintf(p.out, "▶ playing %s (%s)\n", humanize.Bytes(uint64(len(p.data))), length.Round(100*time.Millisecond))

	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(length, func() {
		fmt.Fprintln(p.out, "■ finished")
		if p.finished != nil {
			p.finished()
		}
	})
	return nil
}

// Pause implements playback.Playable.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil && p.timer.Stop() {
		fmt.Fprintln(p.out, "⏸ paused")
	}
	p.timer = nil
}
