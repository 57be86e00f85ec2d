package media

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatengine/internal/metrics"
	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
	mediaService "github.com/zhouzirui/z-tavern/chatengine/internal/service/media"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/utils"
)

// Handler 语音附件上传与下载
type Handler struct {
	media   *mediaService.Service
	metrics *metrics.Metrics
}

// New 创建附件处理器
func New(media *mediaService.Service, m *metrics.Metrics) *Handler {
	return &Handler{media: media, metrics: m}
}

// RegisterRoutes 注册附件路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/media", h.handleUpload)
	r.Get("/media/{file}", h.handleDownload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(h.media.MaxSize())+(1<<20))
	if err := r.ParseMultipartForm(int64(h.media.MaxSize())); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = speech.InferMimeType(header.Filename)
	}

	data, err := io.ReadAll(io.LimitReader(file, int64(h.media.MaxSize())+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	asset, err := h.media.Store(r.Context(), data, mimeType)
	switch {
	case errors.Is(err, mediaService.ErrTooLarge):
		utils.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.metrics.Upload(len(asset.Data))
	log.Printf("[media] stored %s (%s, %s)", asset.ID, asset.MimeType, humanize.Bytes(uint64(len(asset.Data))))

	utils.RespondJSON(w, http.StatusCreated, speech.UploadResult{
		ID:       asset.ID,
		URL:      baseURL(r) + "/api/media/" + asset.ID + speech.ExtensionFor(asset.MimeType),
		MimeType: asset.MimeType,
		Size:     len(asset.Data),
	})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	id := strings.TrimSuffix(file, path.Ext(file))

	asset, err := h.media.Get(r.Context(), id)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", asset.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(asset.Data); err != nil {
		log.Printf("[media] write %s failed: %v", asset.ID, err)
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}
