package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	"github.com/zhouzirui/z-tavern/chatengine/internal/client"
	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/scroll"
	"github.com/zhouzirui/z-tavern/chatengine/internal/handler"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
	chatService "github.com/zhouzirui/z-tavern/chatengine/internal/service/chat"
	mediaService "github.com/zhouzirui/z-tavern/chatengine/internal/service/media"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/quota"
)

func newBackend(t *testing.T, publicBurst int) *httptest.Server {
	t.Helper()
	tokens, err := auth.NewService(config.AuthConfig{Secret: "test", TokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("auth service: %v", err)
	}
	router := handler.NewRouter(handler.Services{
		Personas: persona.NewMemoryStore(persona.Seed()),
		Chat:     chatService.NewService(),
		Quota: quota.NewService(config.QuotaConfig{
			PublicPerMinute: 0.001, PublicBurst: publicBurst,
			MemberPerMinute: 600, MemberBurst: 100,
		}),
		Media: mediaService.NewService(0),
		Auth:  tokens,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIErrorMatchesRateLimited(t *testing.T) {
	cases := []struct {
		err  *client.APIError
		want bool
	}{
		{&client.APIError{Status: http.StatusTooManyRequests}, true},
		{&client.APIError{Status: http.StatusPaymentRequired, Code: chat.CodeQuotaExceeded}, true},
		{&client.APIError{Status: http.StatusBadRequest, Code: chat.CodeRateLimited}, true},
		{&client.APIError{Status: http.StatusInternalServerError}, false},
	}
	for _, tc := range cases {
		if got := errors.Is(tc.err, chat.ErrRateLimited); got != tc.want {
			t.Fatalf("%v: expected %t, got %t", tc.err, tc.want, got)
		}
	}
}

func TestExchangeAndFetchHistory(t *testing.T) {
	srv := newBackend(t, 10)
	c := client.New(srv.URL, 0)
	ctx := context.Background()

	resp, err := c.Exchange(ctx, chat.ExchangeRequest{AgentID: "socrates", Message: "hello"}, false)
	if err != nil {
		t.Fatalf("exchange failed: %v", err)
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	page, err := c.FetchHistory(ctx, chat.HistoryQuery{ConversationID: resp.ConversationID, Limit: 10})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(page.Messages) != 2 || page.HasMore {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Messages[0].Sender != chat.SenderUser || page.Messages[1].ID != resp.MessageID {
		t.Fatalf("unexpected history order: %+v", page.Messages)
	}
}

func TestGatedExchange(t *testing.T) {
	srv := newBackend(t, 1)
	c := client.New(srv.URL, 0)
	ctx := context.Background()

	if _, err := c.Exchange(ctx, chat.ExchangeRequest{AgentID: "socrates", Message: "one"}, false); err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}
	_, err := c.Exchange(ctx, chat.ExchangeRequest{AgentID: "socrates", Message: "two"}, false)
	if !errors.Is(err, chat.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
}

func TestMemberEndpointNeedsSignIn(t *testing.T) {
	srv := newBackend(t, 10)
	c := client.New(srv.URL, 0)
	ctx := context.Background()

	_, err := c.Exchange(ctx, chat.ExchangeRequest{AgentID: "iron-man", Message: "hi"}, true)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if errors.Is(err, chat.ErrRateLimited) {
		t.Fatal("401 must not be treated as a gate")
	}

	if _, err := c.SignIn(ctx, "u1"); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	if !c.Authenticated() {
		t.Fatal("expected token to be kept")
	}
	if _, err := c.Exchange(ctx, chat.ExchangeRequest{AgentID: "iron-man", Message: "hi"}, true); err != nil {
		t.Fatalf("member exchange failed: %v", err)
	}
}

func TestUploadAndDownload(t *testing.T) {
	srv := newBackend(t, 10)
	c := client.New(srv.URL, 0)
	ctx := context.Background()

	url, err := c.Upload(ctx, &speech.Artifact{Data: []byte("opus"), MimeType: "audio/webm"})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	data, mimeType, err := c.Download(ctx, url)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(data) != "opus" || mimeType != "audio/webm" {
		t.Fatalf("unexpected download %q %q", data, mimeType)
	}
}

type fakeViewport struct {
	top, height, client float64
}

func (v *fakeViewport) Metrics() scroll.Metrics {
	return scroll.Metrics{ScrollTop: v.top, ScrollHeight: v.height, ClientHeight: v.client}
}

func (v *fakeViewport) ScrollTo(top float64) { v.top = top }

func TestEngineAgainstBackend(t *testing.T) {
	srv := newBackend(t, 10)
	c := client.New(srv.URL, 0)
	ctx := context.Background()

	viewport := &fakeViewport{height: 1000, client: 100}
	cfg := config.DefaultEngineConfig()
	cfg.AgentID = "socrates"
	cfg.PageSize = 2

	eng, err := engine.New(engine.Deps{
		Exchanger: c,
		Fetcher:   c,
		Auth:      c,
		Uploader:  c,
		Viewport:  viewport,
	}, cfg)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	sess, err := eng.Open(ctx, "", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := sess.Send(ctx, text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}
	conversationID := sess.ConversationID()
	if conversationID == "" || len(sess.Messages()) != 6 {
		t.Fatalf("unexpected session state: %q %d", conversationID, len(sess.Messages()))
	}

	reopened, err := eng.Open(ctx, conversationID, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if got := len(reopened.Messages()); got != 2 || !reopened.HasMore() {
		t.Fatalf("expected newest page of 2 with more, got %d hasMore=%t", got, reopened.HasMore())
	}

	for i := 0; i < 5 && reopened.HasMore(); i++ {
		viewport.top = 0
		if !reopened.HandleScroll(ctx) {
			t.Fatalf("scroll %d did not load", i)
		}
		viewport.height += 200
		reopened.ContentResized()
	}

	msgs := reopened.Messages()
	if len(msgs) != 6 {
		t.Fatalf("expected full history, got %d", len(msgs))
	}
	if msgs[0].Text != "one" || msgs[4].Text != "three" {
		t.Fatalf("history out of order: %q %q", msgs[0].Text, msgs[4].Text)
	}
}
