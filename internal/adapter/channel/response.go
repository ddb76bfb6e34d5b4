// Package channel holds the user-facing shells: HTTP, WebSocket and a
// terminal CLI. Each turns an audio clip into a call on the voice service
// and renders what comes back.
package channel

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"voicebot/internal/domain"
)

// voiceResponse is the JSON body of HTTP and WebSocket replies.
type voiceResponse struct {
	SessionID   string `json:"session_id"`
	User        string `json:"user,omitempty"`
	Bot         string `json:"bot,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioFormat string `json:"audio_format,omitempty"`
	Error       string `json:"error,omitempty"`
	Code        string `json:"code,omitempty"`
}

// newVoiceResponse merges a turn result and its error. Either may be nil:
// a synthesis failure carries both.
func newVoiceResponse(sessionKey string, res *domain.TurnResult, err error) voiceResponse {
	out := voiceResponse{SessionID: sessionKey}
	if res != nil {
		out.User = res.User.Text
		out.Bot = res.Bot.Text
		if !res.Audio.Empty() {
			out.AudioBase64 = base64.StdEncoding.EncodeToString(res.Audio.Data)
			out.AudioFormat = res.Audio.Format
		}
	}
	if err != nil {
		out.Error = err.Error()
		out.Code = string(domain.ErrorCodeOf(err))
	}
	return out
}

// statusFor maps a turn error to an HTTP status.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch domain.ErrorCodeOf(err) {
	case domain.CodeTranscription, domain.CodeValidation, domain.CodeInvalidInput:
		return http.StatusUnprocessableEntity
	case domain.CodeDialogueService, domain.CodeSynthesis:
		return http.StatusBadGateway
	case domain.CodeSessionBusy:
		return http.StatusConflict
	case domain.CodeSessionNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// transcriptTurn is one rendered turn in a transcript response.
type transcriptTurn struct {
	Speaker domain.Speaker `json:"speaker"`
	Clock   string         `json:"clock"`
	Text    string         `json:"text"`
}

type transcriptResponse struct {
	SessionID string           `json:"session_id"`
	Turns     []transcriptTurn `json:"turns"`
}

func newTranscriptResponse(sessionKey string, turns []domain.ChatTurn) transcriptResponse {
	out := transcriptResponse{SessionID: sessionKey, Turns: make([]transcriptTurn, 0, len(turns))}
	for _, t := range turns {
		out.Turns = append(out.Turns, transcriptTurn{Speaker: t.Speaker, Clock: t.Clock(), Text: t.Text})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// formatFromMIME maps an upload's content type to an audio format.
// Unknown types return "" so the transcriber default applies.
func formatFromMIME(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch ct {
	case "audio/mpeg", "audio/mp3":
		return domain.AudioFormatMP3
	case "audio/wav", "audio/x-wav", "audio/wave":
		return domain.AudioFormatWAV
	case "audio/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	default:
		return ""
	}
}

// formatFromName maps a file name extension to an audio format.
func formatFromName(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}
