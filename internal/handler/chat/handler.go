package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	"github.com/zhouzirui/z-tavern/chatengine/internal/metrics"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/persona"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/ai"
	chatService "github.com/zhouzirui/z-tavern/chatengine/internal/service/chat"
	"github.com/zhouzirui/z-tavern/chatengine/internal/service/quota"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/pagination"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/utils"
)

const contextTurns = 12

// MediaPathPrefix is the path under which uploaded voice messages are served.
const MediaPathPrefix = "/api/media/"

// Handler 聊天交换与历史分页的 HTTP 处理器
type Handler struct {
	chatSvc   *chatService.Service
	personas  persona.Store
	responder ai.Responder
	quota     *quota.Service
	metrics   *metrics.Metrics
}

// New 创建聊天处理器。responder 为空时使用 FallbackResponder，quotaSvc 为空时不限流。
func New(chatSvc *chatService.Service, personas persona.Store, responder ai.Responder, quotaSvc *quota.Service, m *metrics.Metrics) *Handler {
	if responder == nil {
		responder = ai.FallbackResponder{}
	}
	return &Handler{
		chatSvc:   chatSvc,
		personas:  personas,
		responder: responder,
		quota:     quotaSvc,
		metrics:   m,
	}
}

// RegisterRoutes 注册聊天相关的路由；memberOnly 保护会员端点。
// identify 只解析可选的 token，未登录请求照常放行。
func (h *Handler) RegisterRoutes(r chi.Router, memberOnly, identify func(http.Handler) http.Handler) {
	passthrough := func(next http.Handler) http.Handler { return next }
	if memberOnly == nil {
		memberOnly = passthrough
	}
	if identify == nil {
		identify = passthrough
	}
	r.With(memberOnly).Post("/chat/{agentId}/messages", h.handleMemberMessage)
	r.Post("/public/chat/{agentId}/messages", h.handlePublicMessage)
	r.With(identify).Get("/conversations/{conversationId}/messages", h.handleHistory)
}

func (h *Handler) handleMemberMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	h.handleExchange(w, r, quota.TierMember, userID, userID)
}

func (h *Handler) handlePublicMessage(w http.ResponseWriter, r *http.Request) {
	h.handleExchange(w, r, quota.TierPublic, clientKey(r), "")
}

func (h *Handler) handleExchange(w http.ResponseWriter, r *http.Request, tier quota.Tier, quotaKey, ownerID string) {
	var req chat.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agentID := chi.URLParam(r, "agentId")
	if req.AgentID != "" && req.AgentID != agentID {
		utils.RespondError(w, http.StatusBadRequest, "agentId does not match the path")
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	p, ok := h.personas.FindByID(agentID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "persona not found")
		return
	}

	if h.quota != nil && !h.quota.Allow(tier, quotaKey) {
		h.metrics.Exchange(string(tier), metrics.OutcomeGated)
		utils.RespondErrorCode(w, http.StatusTooManyRequests, "message limit reached", chat.CodeRateLimited)
		return
	}

	ctx := r.Context()
	conv, status, err := h.resolveConversation(r, req.ConversationID, agentID, ownerID)
	if err != nil {
		h.metrics.Exchange(string(tier), metrics.OutcomeError)
		utils.RespondError(w, status, err.Error())
		return
	}

	history, err := h.chatSvc.Recent(ctx, conv.ID, contextTurns)
	if err != nil {
		h.fail(w, tier, http.StatusInternalServerError, err)
		return
	}

	userTurn, err := h.chatSvc.SaveMessage(ctx, chat.StoredMessage{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        text,
		Media:          voiceMedia(text),
	})
	if err != nil {
		h.fail(w, tier, http.StatusInternalServerError, err)
		return
	}

	reply := chat.StoredMessage{ConversationID: conv.ID, Role: chat.RoleAssistant}
	if premium, ok := p.PremiumMedia(); ok && wantsPicture(text) {
		reply.Content = "I saved something special for you. Unlock it to take a look."
		reply.Media = &premium
	} else {
		reply.Content, err = h.responder.Respond(ctx, &p, history, userTurn)
		if err != nil {
			log.Printf("[chat] responder failed conversation=%s persona=%s: %v", conv.ID, p.ID, err)
			h.fail(w, tier, http.StatusBadGateway, errors.New("agent unavailable"))
			return
		}
	}

	saved, err := h.chatSvc.SaveMessage(ctx, reply)
	if err != nil {
		h.fail(w, tier, http.StatusInternalServerError, err)
		return
	}

	resp := chat.ExchangeResponse{
		Message:        saved.Content,
		ConversationID: conv.ID,
		Timestamp:      saved.CreatedAt.Format(time.RFC3339Nano),
		MessageID:      saved.ID,
	}
	outcome := metrics.OutcomeReply
	if saved.Media != nil {
		media := *saved.Media
		resp.Metadata = &chat.Metadata{Content: &media}
		outcome = metrics.OutcomeMedia
	}
	h.metrics.Exchange(string(tier), outcome)

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) resolveConversation(r *http.Request, conversationID, agentID, ownerID string) (chat.Conversation, int, error) {
	if conversationID == "" {
		conv, err := h.chatSvc.CreateConversation(r.Context(), agentID, ownerID)
		if err != nil {
			return chat.Conversation{}, http.StatusBadRequest, err
		}
		log.Printf("[chat] created conversation=%s persona=%s owner=%q", conv.ID, agentID, ownerID)
		return conv, 0, nil
	}

	conv, err := h.chatSvc.GetConversation(r.Context(), conversationID)
	if err != nil {
		return chat.Conversation{}, http.StatusNotFound, err
	}
	if conv.PersonaID != agentID {
		return chat.Conversation{}, http.StatusBadRequest, errors.New("conversation belongs to another persona")
	}
	if conv.OwnerID != "" && conv.OwnerID != ownerID {
		return chat.Conversation{}, http.StatusNotFound, chatService.ErrConversationNotFound
	}
	return conv, 0, nil
}

func (h *Handler) fail(w http.ResponseWriter, tier quota.Tier, status int, err error) {
	h.metrics.Exchange(string(tier), metrics.OutcomeError)
	utils.RespondError(w, status, err.Error())
}

// handleHistory 按游标返回更早的消息，页内按时间正序。
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationId")
	query := r.URL.Query()

	cursor, err := pagination.DecodeCursor(query.Get("cursor"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	before := cursor.Before
	if before == "" {
		before = strings.TrimSpace(query.Get("before"))
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	limit = pagination.ClampLimit(limit)

	conv, err := h.chatSvc.GetConversation(r.Context(), conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	// 会员会话只对本人可见，其他人一律视为不存在
	if userID, _ := auth.UserID(r.Context()); conv.OwnerID != "" && conv.OwnerID != userID {
		utils.RespondError(w, http.StatusNotFound, chatService.ErrConversationNotFound.Error())
		return
	}

	messages, hasMore, err := h.chatSvc.History(r.Context(), conversationID, before, limit)
	switch {
	case errors.Is(err, chatService.ErrConversationNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, chatService.ErrMessageNotFound):
		utils.RespondError(w, http.StatusBadRequest, "unknown before message")
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := chat.HistoryResponse{
		Messages: make([]chat.HistoryEntry, 0, len(messages)),
		HasMore:  hasMore,
	}
	for _, msg := range messages {
		resp.Messages = append(resp.Messages, msg.Entry())
	}
	if hasMore && len(messages) > 0 {
		resp.Cursor = pagination.EncodeCursor(pagination.CursorPayload{Before: messages[0].ID})
	}
	h.metrics.HistoryPage()

	utils.RespondJSON(w, http.StatusOK, resp)
}

// voiceMedia recognises a message whose whole content is an uploaded voice
// artifact URL.
func voiceMedia(text string) *chat.Media {
	u, err := url.Parse(text)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || !strings.HasPrefix(u.Path, MediaPathPrefix) {
		return nil
	}
	return &chat.Media{URL: text, MimeType: speech.InferMimeType(u.Path)}
}

var pictureWords = []string{"photo", "picture", "selfie", "image"}

func wantsPicture(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range pictureWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
