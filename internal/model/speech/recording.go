package speech

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrPermissionDenied is returned when the user declines microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable is returned when no capture device exists.
	ErrDeviceUnavailable = errors.New("microphone unavailable")
)

// RecorderState is the phase of the recording state machine.
type RecorderState string

const (
	StateIdle       RecorderState = "idle"
	StateRecording  RecorderState = "recording"
	StateFinalizing RecorderState = "finalizing"
)

// Artifact is a finalized audio recording ready to be attached to a message.
type Artifact struct {
	Data      []byte        `json:"-"`
	MimeType  string        `json:"mimeType"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Size returns the artifact payload length in bytes.
func (a *Artifact) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// Filename returns a name with an extension matching the mime type.
func (a *Artifact) Filename() string {
	return "voice" + ExtensionFor(a.MimeType)
}

// InferMimeType maps a file name to an audio mime type.
func InferMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".ogg", ".oga":
		return "audio/ogg"
	default:
		return "audio/webm"
	}
}

// ExtensionFor is the inverse of InferMimeType.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/mpeg":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".webm"
	}
}

// UploadResult is returned by the media endpoint for a stored artifact.
type UploadResult struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
	Size     int    `json:"size"`
}
