package media

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/speech"
	mediaService "github.com/zhouzirui/z-tavern/chatengine/internal/service/media"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(mediaService.NewService(0), nil).RegisterRoutes(r)
	return r
}

func uploadRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/media", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadThenDownload(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "audio", "voice.wav", []byte("RIFFdata")))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var result speech.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.MimeType != "audio/wav" || result.Size != 8 {
		t.Fatalf("unexpected upload result: %+v", result)
	}

	u, err := url.Parse(result.URL)
	if err != nil || u.Path != "/api/media/"+result.ID+".wav" {
		t.Fatalf("unexpected url %q", result.URL)
	}

	download := httptest.NewRecorder()
	r.ServeHTTP(download, httptest.NewRequest(http.MethodGet, "/media/"+result.ID+".wav", nil))
	if download.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", download.Code)
	}
	if download.Header().Get("Content-Type") != "audio/wav" || download.Body.String() != "RIFFdata" {
		t.Fatalf("unexpected download: %s %q", download.Header().Get("Content-Type"), download.Body.String())
	}
}

func TestUploadRequiresAudioField(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, uploadRequest(t, "file", "voice.wav", []byte("x")))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestDownloadMissing(t *testing.T) {
	r := setupRouter()

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/media/nope.webm", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
