package chat

// Page is one batch of historical messages, ordered oldest to newest.
type Page struct {
	Messages []Message `json:"messages"`
	Cursor   string    `json:"cursor,omitempty"`
	HasMore  bool      `json:"hasMore"`
}

// HistoryQuery selects the page that ends right before the already loaded history.
type HistoryQuery struct {
	ConversationID string
	Cursor         string
	Before         string
	Limit          int
}
