package channel

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"voicebot/internal/domain"
)

const (
	defaultRenderWidth = 72
	maxBubbleWidth     = 48
)

var (
	colorUserBubble = lipgloss.Color("#007AFF")
	colorBotBubble  = lipgloss.Color("#D3D3D3")
	colorClock      = lipgloss.Color("#808080")
)

// TranscriptRenderer draws chat turns as terminal bubbles: user turns on the
// left in blue, bot turns on the right in gray, each followed by its HH:MM
// stamp.
type TranscriptRenderer struct {
	width  int
	user   lipgloss.Style
	bot    lipgloss.Style
	clock  lipgloss.Style
	notice lipgloss.Style
}

// NewTranscriptRenderer returns a renderer for a terminal of the given width.
// A non-positive width selects a default.
func NewTranscriptRenderer(width int) *TranscriptRenderer {
	if width <= 0 {
		width = defaultRenderWidth
	}
	bubble := min(maxBubbleWidth, width-8)
	return &TranscriptRenderer{
		width: width,
		user: lipgloss.NewStyle().
			Background(colorUserBubble).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 1).
			MaxWidth(bubble),
		bot: lipgloss.NewStyle().
			Background(colorBotBubble).
			Foreground(lipgloss.Color("#000000")).
			Padding(0, 1).
			MaxWidth(bubble),
		clock:  lipgloss.NewStyle().Foreground(colorClock),
		notice: lipgloss.NewStyle().Foreground(colorClock).Italic(true),
	}
}

// Turn renders a single turn.
func (r *TranscriptRenderer) Turn(t domain.ChatTurn) string {
	stamp := r.clock.Render(t.Clock())

	style, align := r.bot, lipgloss.Right
	if t.Speaker == domain.SpeakerUser {
		style, align = r.user, lipgloss.Left
	}
	row := lipgloss.JoinHorizontal(lipgloss.Bottom, r.bubble(style, t.Text), " ", stamp)
	return lipgloss.PlaceHorizontal(r.width, align, row)
}

// bubble wraps long text at the bubble width instead of truncating it.
func (r *TranscriptRenderer) bubble(style lipgloss.Style, text string) string {
	limit := style.GetMaxWidth()
	if lipgloss.Width(text)+2 > limit {
		style = style.Width(limit)
	}
	return style.Render(text)
}

// Transcript renders turns in order, one bubble per turn.
func (r *TranscriptRenderer) Transcript(turns []domain.ChatTurn) string {
	rows := make([]string, 0, len(turns))
	for _, t := range turns {
		rows = append(rows, r.Turn(t))
	}
	return strings.Join(rows, "\n")
}

// Notice renders a muted status line, such as a saved audio path or an error.
func (r *TranscriptRenderer) Notice(msg string) string {
	return r.notice.Render(msg)
}
