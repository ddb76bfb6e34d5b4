package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"voicebot/internal/adapter/speech"
	"voicebot/internal/domain"
	"voicebot/internal/infra/config"
)

const helpCLI = `Commands:

<path>          Send an audio file (mp3, wav, webm, m4a, ogg) as one utterance
/transcript     Show the conversation so far
/help           Show this help message
/quit, /exit    Exit voicebot

Ask about the current weather or today's won-dollar exchange rate.
Reply audio is saved under the configured output directory.`

// CLIChannel reads audio file paths from a line-oriented input and prints
// the transcript as chat bubbles.
type CLIChannel struct {
	cfg      config.CLIChannelConfig
	in       io.Reader
	out      io.Writer
	logger   *slog.Logger
	renderer *TranscriptRenderer
	key      string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCLIChannel creates a CLI channel. Nil in/out select stdin/stdout.
func NewCLIChannel(cfg config.CLIChannelConfig, in io.Reader, out io.Writer, logger *slog.Logger) *CLIChannel {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &CLIChannel{
		cfg:      cfg,
		in:       in,
		out:      out,
		logger:   logger,
		renderer: NewTranscriptRenderer(0),
		key:      "cli-" + ulid.Make().String(),
		done:     make(chan struct{}),
	}
}

// Name implements domain.Channel.
func (c *CLIChannel) Name() string { return "cli" }

// Done is closed when the input ends or the user quits.
func (c *CLIChannel) Done() <-chan struct{} { return c.done }

// Start begins reading input. Non-blocking.
func (c *CLIChannel) Start(ctx context.Context, handler domain.UtteranceHandler) error {
	if c.cfg.OutputDir != "" {
		if err := os.MkdirAll(c.cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	fmt.Fprintln(c.out, c.renderer.Notice("voicebot ready. Type /help for commands."))
	go func() {
		defer close(c.done)
		c.readLoop(ctx, handler)
	}()
	return nil
}

// Stop ends the read loop after the current line.
func (c *CLIChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *CLIChannel) readLoop(ctx context.Context, handler domain.UtteranceHandler) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !c.handleLine(ctx, handler, line) {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Error("cli read error", "error", err)
	}
}

// handleLine processes one input line. It returns false when the user quits.
func (c *CLIChannel) handleLine(ctx context.Context, handler domain.UtteranceHandler, line string) bool {
	switch line {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(c.out, helpCLI)
		return true
	case "/transcript":
		turns, err := handler.Transcript(c.key)
		if err != nil {
			fmt.Fprintln(c.out, c.renderer.Notice("no conversation yet"))
			return true
		}
		fmt.Fprintln(c.out, c.renderer.Transcript(turns))
		return true
	}

	data, err := os.ReadFile(line)
	if err != nil {
		fmt.Fprintln(c.out, c.renderer.Notice(fmt.Sprintf("cannot read %s: %v", line, err)))
		return true
	}
	clip := domain.AudioClip{Data: data, Format: formatFromName(line)}

	res, err := handler.SubmitUtterance(ctx, c.key, clip)
	if res != nil {
		fmt.Fprintln(c.out, c.renderer.Turn(res.User))
		fmt.Fprintln(c.out, c.renderer.Turn(res.Bot))
		c.saveReply(res.Audio)
	}
	if err != nil {
		c.logger.Warn("voice turn failed", "session_key", c.key, "error", err)
		fmt.Fprintln(c.out, c.renderer.Notice("error: "+err.Error()))
	}
	return true
}

func (c *CLIChannel) saveReply(clip domain.AudioClip) {
	if clip.Empty() {
		return
	}
	path, err := speech.WriteClip(c.cfg.OutputDir, "reply", clip)
	if err != nil {
		c.logger.Warn("save reply audio failed", "error", err)
		return
	}
	fmt.Fprintln(c.out, c.renderer.Notice("audio: "+path))
}

var _ domain.Channel = (*CLIChannel)(nil)
