package send

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMissingArtifact = errors.New("audio artifact url is required")
)

// Exchanger dispatches one message to the agent backend. authenticated selects
// the member endpoint instead of the public one.
type Exchanger interface {
	Exchange(ctx context.Context, req chat.ExchangeRequest, authenticated bool) (*chat.ExchangeResponse, error)
}

// Authenticator reports whether the current user holds a session token.
type Authenticator interface {
	Authenticated() bool
}

// Paywall is the upgrade/sign-up surface opened on gated responses.
type Paywall interface {
	Open(reason string)
}

// Draft is the composer input cleared once a text message is accepted.
type Draft interface {
	Clear()
}

// Notifier surfaces the inline error affordance for failed sends.
type Notifier interface {
	NotifyError(err error)
}

// Options configures a Pipeline. Store, AgentID and Exchanger are required.
type Options struct {
	AgentID   string
	Store     *transcript.Store
	Exchanger Exchanger
	Auth      Authenticator
	Paywall   Paywall
	Draft     Draft
	Notifier  Notifier
	// OnTyping observes typing flag transitions.
	OnTyping func(typing bool)
	Now      func() time.Time
}

// Pipeline performs optimistic insertion, dispatch and reconciliation of user
// messages.
type Pipeline struct {
	opts Options

	mu      sync.Mutex
	pending int
	typing  bool

	// creating is held by the exchange that will create the conversation.
	creating chan struct{}
}

// NewPipeline creates a send pipeline.
func NewPipeline(opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts, creating: make(chan struct{}, 1)}
}

// Typing reports whether an agent reply is pending.
func (p *Pipeline) Typing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typing
}

// Send appends text as a user message and exchanges it with the agent.
func (p *Pipeline) Send(ctx context.Context, text string) (Outcome, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	p.opts.Store.Append(chat.NewUserMessage(trimmed, nil, p.opts.Now()))
	if p.opts.Draft != nil {
		p.opts.Draft.Clear()
	}

	return p.exchange(ctx, trimmed), nil
}

// SendVoice appends a voice message referencing artifactURL and exchanges it.
// The draft input is left untouched.
func (p *Pipeline) SendVoice(ctx context.Context, artifactURL string, mimeType string) (Outcome, error) {
	artifactURL = strings.TrimSpace(artifactURL)
	if artifactURL == "" {
		return nil, ErrMissingArtifact
	}
	if mimeType == "" {
		mimeType = speech.InferMimeType(artifactURL)
	}

	media := &chat.Media{URL: artifactURL, MimeType: mimeType}
	p.opts.Store.Append(chat.NewUserMessage("", media, p.opts.Now()))

	return p.exchange(ctx, artifactURL), nil
}

func (p *Pipeline) exchange(ctx context.Context, payload string) Outcome {
	p.beginTyping()
	defer p.endTyping()

	release, err := p.awaitConversation(ctx)
	if err != nil {
		if p.opts.Notifier != nil {
			p.opts.Notifier.NotifyError(err)
		}
		return Failed{Err: err}
	}
	defer release()

	req := chat.ExchangeRequest{
		AgentID:        p.opts.AgentID,
		Message:        payload,
		ConversationID: p.opts.Store.ConversationID(),
	}

	authenticated := p.opts.Auth != nil && p.opts.Auth.Authenticated()
	resp, err := p.opts.Exchanger.Exchange(ctx, req, authenticated)
	if err != nil {
		if errors.Is(err, chat.ErrRateLimited) {
			reason := chat.CodeRateLimited
			if !authenticated {
				reason = chat.GateSignupRequired
			}
			if p.opts.Paywall != nil {
				p.opts.Paywall.Open(reason)
			}
			return Gated{Reason: reason}
		}

		log.Printf("[send] exchange failed agent=%s conversation=%s: %v", req.AgentID, req.ConversationID, err)
		if p.opts.Notifier != nil {
			p.opts.Notifier.NotifyError(err)
		}
		return Failed{Err: err}
	}
	if resp == nil {
		err := errors.New("empty exchange response")
		if p.opts.Notifier != nil {
			p.opts.Notifier.NotifyError(err)
		}
		return Failed{Err: err}
	}

	if p.opts.Store.AdoptConversation(resp.ConversationID) {
		log.Printf("[send] conversation %s created for agent=%s", resp.ConversationID, req.AgentID)
	}

	reply := resp.AgentMessage(p.opts.Now())
	p.opts.Store.Append(reply)

	if reply.Media != nil {
		return MediaReply{Message: reply, Locked: reply.IsLocked()}
	}
	return TextReply{Message: reply}
}

// awaitConversation serializes exchanges while the conversation does not
// exist yet, so only the first one creates it and later ones reuse its id.
// The returned func releases the claim once the exchange settled.
func (p *Pipeline) awaitConversation(ctx context.Context) (func(), error) {
	if p.opts.Store.ConversationID() != "" {
		return func() {}, nil
	}
	select {
	case p.creating <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if p.opts.Store.ConversationID() != "" {
		<-p.creating
		return func() {}, nil
	}
	return func() { <-p.creating }, nil
}

// beginTyping and endTyping count overlapping exchanges so the flag only
// drops once every pending reply has settled.
func (p *Pipeline) beginTyping() {
	p.mu.Lock()
	p.pending++
	changed := !p.typing
	p.typing = true
	p.mu.Unlock()

	if changed && p.opts.OnTyping != nil {
		p.opts.OnTyping(true)
	}
}

func (p *Pipeline) endTyping() {
	p.mu.Lock()
	p.pending--
	changed := p.pending == 0 && p.typing
	if changed {
		p.typing = false
	}
	p.mu.Unlock()

	if changed && p.opts.OnTyping != nil {
		p.opts.OnTyping(false)
	}
}
