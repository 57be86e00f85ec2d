package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   []*chat.Page
	err     error
	queries []chat.HistoryQuery
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, query chat.HistoryQuery) (*chat.Page, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return &chat.Page{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func msg(id string) chat.Message {
	return chat.Message{ID: id, Sender: chat.SenderAgent, Text: id}
}

func order(store *transcript.Store) string {
	out := ""
	for i, m := range store.Messages() {
		if i > 0 {
			out += ","
		}
		out += m.ID
	}
	return out
}

func TestLoadMoreMergesPageAndStops(t *testing.T) {
	store := transcript.NewStore("c1")
	store.ReplaceAll([]chat.Message{msg("m5"), msg("m6"), msg("m7")})

	fetcher := &fakeFetcher{pages: []*chat.Page{{Messages: []chat.Message{msg("m3"), msg("m4")}, HasMore: false}}}
	loader := NewLoader(store, fetcher, 25)
	loader.Reset(true, "cursor-5")

	if err := loader.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore err: %v", err)
	}
	if got := order(store); got != "m3,m4,m5,m6,m7" {
		t.Fatalf("unexpected transcript: %s", got)
	}
	if loader.HasMore() {
		t.Fatal("expected hasMore=false")
	}
	if fetcher.queries[0].Cursor != "cursor-5" || fetcher.queries[0].ConversationID != "c1" {
		t.Fatalf("unexpected query: %+v", fetcher.queries[0])
	}

	if err := loader.LoadMore(context.Background()); err != nil {
		t.Fatalf("second LoadMore err: %v", err)
	}
	if fetcher.calls() != 1 {
		t.Fatalf("expected no further fetch, got %d calls", fetcher.calls())
	}
}

func TestLoadMoreWithoutConversationIsNoop(t *testing.T) {
	store := transcript.NewStore("")
	fetcher := &fakeFetcher{}
	loader := NewLoader(store, fetcher, 25)
	loader.Reset(true, "")

	if err := loader.LoadMore(context.Background()); err != nil {
		t.Fatalf("LoadMore err: %v", err)
	}
	if fetcher.calls() != 0 {
		t.Fatal("expected no fetch without a conversation")
	}
}

func TestLoadMoreFailureKeepsHasMore(t *testing.T) {
	store := transcript.NewStore("c1")
	store.ReplaceAll([]chat.Message{msg("m5")})
	fetcher := &fakeFetcher{err: errors.New("network down")}
	loader := NewLoader(store, fetcher, 25)
	loader.Reset(true, "")

	if err := loader.LoadMore(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !loader.HasMore() {
		t.Fatal("failure must not clear hasMore")
	}
	if loader.Loading() {
		t.Fatal("loading flag must be cleared")
	}
	if fetcher.queries[0].Before != "m5" {
		t.Fatalf("expected before=m5 without cursor, got %+v", fetcher.queries[0])
	}

	fetcher.err = nil
	fetcher.pages = []*chat.Page{{Messages: []chat.Message{msg("m4")}, HasMore: true, Cursor: "next"}}
	if err := loader.LoadMore(context.Background()); err != nil {
		t.Fatalf("retry err: %v", err)
	}
	if got := order(store); got != "m4,m5" {
		t.Fatalf("unexpected transcript: %s", got)
	}
}

func TestLoadMoreIgnoresConcurrentCall(t *testing.T) {
	store := transcript.NewStore("c1")
	store.ReplaceAll([]chat.Message{msg("m5")})
	fetcher := &fakeFetcher{
		pages:   []*chat.Page{{Messages: []chat.Message{msg("m4")}, HasMore: true}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	loader := NewLoader(store, fetcher, 25)
	loader.Reset(true, "")

	done := make(chan error, 1)
	go func() { done <- loader.LoadMore(context.Background()) }()
	<-fetcher.entered

	if !loader.Loading() {
		t.Fatal("expected loading while fetch is in flight")
	}
	if err := loader.LoadMore(context.Background()); err != nil {
		t.Fatalf("concurrent LoadMore err: %v", err)
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore err: %v", err)
	}
	if fetcher.calls() != 1 {
		t.Fatalf("expected a single fetch, got %d", fetcher.calls())
	}
}

func TestLoadMoreDropsStalePage(t *testing.T) {
	store := transcript.NewStore("c1")
	store.ReplaceAll([]chat.Message{msg("m5")})
	fetcher := &fakeFetcher{
		pages:   []*chat.Page{{Messages: []chat.Message{msg("m4")}, HasMore: true}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	loader := NewLoader(store, fetcher, 25)
	loader.Reset(true, "")

	done := make(chan error, 1)
	go func() { done <- loader.LoadMore(context.Background()) }()
	<-fetcher.entered

	store.ReplaceAll([]chat.Message{msg("x1")})
	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("LoadMore err: %v", err)
	}
	if got := order(store); got != "x1" {
		t.Fatalf("stale page merged: %s", got)
	}
}
