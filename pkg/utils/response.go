package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/zhouzirui/z-tavern/chatengine/internal/model/chat"
)

// RespondJSON 发送 JSON 响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, chat.ErrorEnvelope{Error: message})
}

// RespondErrorCode 发送带机器可读 code 的错误响应，例如限流时的 rate_limited。
func RespondErrorCode(w http.ResponseWriter, status int, message, code string) {
	RespondJSON(w, status, chat.ErrorEnvelope{Error: message, Code: code})
}
