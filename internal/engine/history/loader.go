package history

import (
	"context"
	"log"
	"sync"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
)

// Fetcher retrieves one page of messages older than the query position.
type Fetcher interface {
	FetchHistory(ctx context.Context, query chat.HistoryQuery) (*chat.Page, error)
}

// Loader fetches older pages on demand and prepends them to the transcript.
type Loader struct {
	store   *transcript.Store
	fetcher Fetcher
	limit   int

	mu      sync.Mutex
	hasMore bool
	loading bool
	cursor  string
}

// NewLoader creates a loader with no known history beyond the transcript.
func NewLoader(store *transcript.Store, fetcher Fetcher, limit int) *Loader {
	return &Loader{
		store:   store,
		fetcher: fetcher,
		limit:   limit,
	}
}

// Reset seeds the loader from the initial page of a newly opened conversation.
func (l *Loader) Reset(hasMore bool, cursor string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hasMore = hasMore
	l.cursor = cursor
}

// HasMore reports whether older history may exist.
func (l *Loader) HasMore() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasMore
}

// Loading reports whether a fetch is in flight.
func (l *Loader) Loading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// LoadMore fetches the page preceding the oldest loaded message. It is a no-op
// without a conversation, without more history, or while another load runs.
// Errors leave HasMore untouched so the next scroll retries.
func (l *Loader) LoadMore(ctx context.Context) error {
	conversationID := l.store.ConversationID()
	if conversationID == "" || l.fetcher == nil {
		return nil
	}

	l.mu.Lock()
	if !l.hasMore || l.loading {
		l.mu.Unlock()
		return nil
	}
	l.loading = true
	cursor := l.cursor
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.loading = false
		l.mu.Unlock()
	}()

	query := chat.HistoryQuery{
		ConversationID: conversationID,
		Cursor:         cursor,
		Limit:          l.limit,
	}
	if cursor == "" {
		if oldest, ok := l.store.Oldest(); ok {
			query.Before = oldest.ID
		}
	}

	generation := l.store.Generation()
	page, err := l.fetcher.FetchHistory(ctx, query)
	if err != nil {
		log.Printf("[history] load more failed for conversation=%s: %v", conversationID, err)
		return err
	}
	if page == nil {
		return nil
	}

	if l.store.Generation() != generation || l.store.ConversationID() != conversationID {
		log.Printf("[history] dropping stale page for conversation=%s", conversationID)
		return nil
	}

	inserted := l.store.PrependPage(page.Messages)

	l.mu.Lock()
	l.hasMore = page.HasMore
	l.cursor = page.Cursor
	l.mu.Unlock()

	log.Printf("[history] merged %d older messages into conversation=%s hasMore=%t", inserted, conversationID, page.HasMore)
	return nil
}
