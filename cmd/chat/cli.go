package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	"github.com/zhouzirui/z-tavern/chatengine/internal/client"
	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
	"github.com/zhouzirui/z-tavern/chatengine/internal/device"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/send"
	"github.com/zhouzirui/z-tavern/chatengine/internal/engine/transcript"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
)

const historyFile = ".ztavern_history"

// ChatCLI is an interactive terminal front end for the conversation engine.
type ChatCLI struct {
	api      *client.Client
	cfg      config.EngineConfig
	out      io.Writer
	engine   *engine.Engine
	viewport *device.Viewport
	mic      *device.FileMicrophone

	mu       sync.Mutex
	session  *engine.Session
	rendered int
	elapsed  int
}

// NewChatCLI wires the engine to the backend client and terminal devices.
func NewChatCLI(api *client.Client, cfg config.EngineConfig, rows int, out io.Writer) (*ChatCLI, error) {
	c := &ChatCLI{
		api:      api,
		cfg:      cfg,
		out:      out,
		viewport: device.NewViewport(rows),
		mic:      &device.FileMicrophone{},
	}

	eng, err := engine.New(engine.Deps{
		Exchanger:  api,
		Fetcher:    api,
		Auth:       api,
		Paywall:    c,
		Notifier:   c,
		Microphone: c.mic,
		Uploader:   api,
		Viewport:   c.viewport,
		Hooks: engine.Hooks{
			OnEvent:     c.onEvent,
			OnTyping:    c.onTyping,
			OnOutcome:   c.onOutcome,
			OnRecording: c.onRecording,
			OnElapsed:   c.onElapsed,
			OnPlayback:  c.onPlayback,
			OnError:     c.onError,
		},
	}, cfg)
	if err != nil {
		return nil, err
	}
	c.engine = eng
	return c, nil
}

// Run opens conversationID (empty starts a new one) and reads input until
// /quit or EOF.
func (c *ChatCLI) Run(ctx context.Context, conversationID string) error {
	sess, err := c.open(ctx, conversationID)
	if err != nil {
		return err
	}
	defer c.engine.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	c.loadHistory(line)
	defer c.saveHistory(line)

	c.printWelcome(sess)

	for {
		input, err := line.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(c.out, "(use /quit to leave)")
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			keepGoing, err := c.handleSlashCommand(ctx, sess, input)
			if err != nil {
				fmt.Fprintf(c.out, "! %v\n", err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if _, err := sess.Send(ctx, input); err != nil {
			fmt.Fprintf(c.out, "! %v\n", err)
		}
	}
}

func (c *ChatCLI) open(ctx context.Context, conversationID string) (*engine.Session, error) {
	sess, err := c.engine.Open(ctx, conversationID, nil)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	for _, msg := range sess.Messages() {
		c.attachPlayer(sess, msg)
	}
	sess.ContentResized()
	return sess, nil
}

func (c *ChatCLI) handleSlashCommand(ctx context.Context, sess *engine.Session, input string) (bool, error) {
	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		fmt.Fprintln(c.out, "bye")
		return false, nil

	case "/help", "/h":
		c.printHelp()

	case "/voice":
		if len(args) != 1 {
			return true, errors.New("usage: /voice <file>")
		}
		c.mic.Use(args[0])
		if err := sess.StartRecording(ctx); err != nil {
			return true, fmt.Errorf("start recording: %w", err)
		}
		fmt.Fprintf(c.out, "● recording %s (/stop to send, /cancel to discard)\n", filepath.Base(args[0]))

	case "/stop":
		artifact, err := sess.StopRecording(ctx)
		if err != nil {
			return true, fmt.Errorf("send voice message: %w", err)
		}
		if artifact == nil {
			return true, errors.New("not recording")
		}
		fmt.Fprintf(c.out, "voice message sent (%s, %s)\n",
			humanize.Bytes(uint64(artifact.Size())), artifact.Duration.Round(100*time.Millisecond))

	case "/cancel":
		sess.AbortRecording()

	case "/up", "/down":
		n, err := c.lineCount(args)
		if err != nil {
			return true, err
		}
		if cmd == "/up" {
			n = -n
		}
		c.viewport.ScrollBy(n)
		if sess.HandleScroll(ctx) {
			sess.ContentResized()
		}
		c.printWindow(sess)

	case "/list":
		c.printWindow(sess)

	case "/play":
		if len(args) != 1 {
			return true, errors.New("usage: /play <n>")
		}
		msg, err := c.messageAt(sess, args[0])
		if err != nil {
			return true, err
		}
		if !msg.IsAudio() {
			return true, fmt.Errorf("message %s is not a voice message", args[0])
		}
		if err := sess.TogglePlay(msg.ID); err != nil {
			return true, fmt.Errorf("play: %w", err)
		}

	case "/status":
		auth := "guest"
		if c.api.Authenticated() {
			auth = "signed in as " + c.cfg.UserID
		}
		id := sess.ConversationID()
		if id == "" {
			id = "(new)"
		}
		fmt.Fprintf(c.out, "agent %s, conversation %s, %d messages, %s, recorder %s\n",
			c.cfg.AgentID, id, len(sess.Messages()), auth, sess.RecordingState())

	default:
		return true, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return true, nil
}

func (c *ChatCLI) lineCount(args []string) (int, error) {
	if len(args) == 0 {
		return c.viewport.Rows(), nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid line count %q", args[0])
	}
	return n, nil
}

func (c *ChatCLI) messageAt(sess *engine.Session, raw string) (chat.Message, error) {
	n, err := strconv.Atoi(raw)
	msgs := sess.Messages()
	if err != nil || n < 1 || n > len(msgs) {
		return chat.Message{}, fmt.Errorf("no message %q", raw)
	}
	return msgs[n-1], nil
}

// Open shows the paywall inline.
func (c *ChatCLI) Open(reason string) {
	switch reason {
	case chat.GateSignupRequired:
		fmt.Fprintln(c.out, "$ free messages used up: set CHAT_USER_ID to sign in and keep chatting")
	default:
		fmt.Fprintf(c.out, "$ slow down (%s): upgrade for more messages\n", reason)
	}
}

// NotifyError is the inline error for a failed send.
func (c *ChatCLI) NotifyError(err error) {
	fmt.Fprintf(c.out, "! message not delivered: %v\n", err)
}

func (c *ChatCLI) onEvent(evt transcript.Event) {
	c.mu.Lock()
	switch evt.Kind {
	case transcript.Replaced:
		c.rendered = len(evt.Messages)
	default:
		c.rendered += len(evt.Messages)
	}
	c.viewport.SetContentHeight(c.rendered)
	sess := c.session
	c.mu.Unlock()

	if evt.Kind == transcript.Appended {
		for _, msg := range evt.Messages {
			fmt.Fprintln(c.out, formatMessage(0, msg))
		}
	}
	if evt.Kind == transcript.Prepended {
		fmt.Fprintf(c.out, "↑ loaded %d earlier messages\n", len(evt.Messages))
	}

	if sess == nil {
		return
	}
	for _, msg := range evt.Messages {
		c.attachPlayer(sess, msg)
	}
	sess.ContentResized()
}

func (c *ChatCLI) attachPlayer(sess *engine.Session, msg chat.Message) {
	if !msg.IsAudio() {
		return
	}
	id := msg.ID
	sess.RegisterPlayable(id, device.NewPlayer(msg.Media.URL, c.api.Download, c.out, func() {
		sess.PlaybackFinished(id)
	}))
}

func (c *ChatCLI) onTyping(typing bool) {
	if typing {
		fmt.Fprintf(c.out, "… %s is typing\n", c.cfg.AgentID)
	}
}

func (c *ChatCLI) onOutcome(outcome send.Outcome) {
	if reply, ok := outcome.(send.MediaReply); ok && reply.Locked {
		price := "premium"
		if reply.Message.Media.Price != nil {
			price = fmt.Sprintf("$%.2f", *reply.Message.Media.Price)
		}
		fmt.Fprintf(c.out, "🔒 locked photo (%s)\n", price)
	}
}

func (c *ChatCLI) onRecording(state speech.RecorderState) {
	if state == speech.StateFinalizing {
		c.mu.Lock()
		elapsed := c.elapsed
		c.mu.Unlock()
		fmt.Fprintf(c.out, "■ recording finished after %ds\n", elapsed)
	}
}

func (c *ChatCLI) onElapsed(seconds int) {
	c.mu.Lock()
	c.elapsed = seconds
	c.mu.Unlock()
}

func (c *ChatCLI) onPlayback(messageID string, playing bool) {
	if !playing {
		return
	}
	for i, msg := range c.currentMessages() {
		if msg.ID == messageID {
			fmt.Fprintf(c.out, "♪ message %d\n", i+1)
			return
		}
	}
}

func (c *ChatCLI) onError(err error) {
	fmt.Fprintf(c.out, "! %v\n", err)
}

func (c *ChatCLI) currentMessages() []chat.Message {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Messages()
}

func (c *ChatCLI) printWelcome(sess *engine.Session) {
	fmt.Fprintf(c.out, "Chatting with %s at %s. Type /help for commands.\n", c.cfg.AgentID, c.cfg.BackendURL)
	c.printWindow(sess)
}

func (c *ChatCLI) printWindow(sess *engine.Session) {
	msgs := sess.Messages()
	start, end := c.viewport.Window()
	if end > len(msgs) {
		end = len(msgs)
	}
	if start > 0 || sess.HasMore() {
		fmt.Fprintln(c.out, "  ⋮")
	}
	for i := start; i < end; i++ {
		fmt.Fprintln(c.out, formatMessage(i+1, msgs[i]))
	}
}

func (c *ChatCLI) printHelp() {
	fmt.Fprint(c.out, `Commands:
  <text>          send a message
  /voice <file>   record a voice message from an audio file
  /stop           finish recording and send it
  /cancel         discard the recording
  /up [n]         scroll up n lines, loading older history at the top
  /down [n]       scroll down n lines
  /list           show the visible messages
  /play <n>       play or pause voice message n
  /status         show session details
  /quit           leave
`)
}

func (c *ChatCLI) loadHistory(line *liner.State) {
	f, err := os.Open(historyPath())
	if err != nil {
		return
	}
	defer f.Close()
	line.ReadHistory(f)
}

func (c *ChatCLI) saveHistory(line *liner.State) {
	f, err := os.Create(historyPath())
	if err != nil {
		return
	}
	defer f.Close()
	line.WriteHistory(f)
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return historyFile
	}
	return filepath.Join(home, historyFile)
}

func formatMessage(index int, msg chat.Message) string {
	who := "you"
	if msg.Sender == chat.SenderAgent {
		who = "them"
	}

	body := msg.Text
	switch {
	case msg.IsAudio():
		body = "[voice message]"
	case msg.IsLocked():
		body = "[locked photo]"
	case msg.Media != nil:
		body = strings.TrimSpace(body + " [photo " + msg.Media.URL + "]")
	}

	stamp := msg.Timestamp
	if !msg.CreatedAt.IsZero() {
		stamp = humanize.Time(msg.CreatedAt)
	}
	if index > 0 {
		return fmt.Sprintf("%3d  %-4s %s  (%s)", index, who, body, stamp)
	}
	return fmt.Sprintf("     %-4s %s  (%s)", who, body, stamp)
}
