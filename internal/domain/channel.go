package domain

import (
	"context"
	"time"
)

// Speaker tags a presentation turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// ChatTurn is one rendered line of the transcript. It is derived from the
// conversation and never fed back into it.
type ChatTurn struct {
	Speaker Speaker   `json:"speaker"`
	Time    time.Time `json:"time"`
	Text    string    `json:"text"`
}

// Clock renders the turn time as HH:MM.
func (t ChatTurn) Clock() string { return t.Time.Format("15:04") }

// TurnResult is the displayable pair produced by one utterance.
type TurnResult struct {
	SessionID string    `json:"session_id"`
	User      ChatTurn  `json:"user"`
	Bot       ChatTurn  `json:"bot"`
	Audio     AudioClip `json:"audio"`
}

// UtteranceHandler is the core boundary the channels call into.
type UtteranceHandler interface {
	SubmitUtterance(ctx context.Context, sessionKey string, clip AudioClip) (*TurnResult, error)
	Transcript(sessionKey string) ([]ChatTurn, error)
}

// Channel is the interface for user-facing I/O adapters.
type Channel interface {
	Start(ctx context.Context, handler UtteranceHandler) error
	Stop(ctx context.Context) error
	Name() string
}
