package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/harun/luna/pkg/orchestrator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ConsoleName = "console"
	ConsoleRoom = "console"
)

// ConsoleChannel reads one message per line and prints replies, for local use.
type ConsoleChannel struct {
	in          io.Reader
	out         io.Writer
	participant string
	botName     string
	logger      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsoleChannel creates a console channel. An empty participant falls
// back to $USER.
func NewConsoleChannel(in io.Reader, out io.Writer, participant, botName string) *ConsoleChannel {
	if participant == "" {
		participant = os.Getenv("USER")
	}
	if participant == "" {
		participant = "me"
	}
	if botName == "" {
		botName = "luna"
	}
	return &ConsoleChannel{
		in:          in,
		out:         out,
		participant: participant,
		botName:     botName,
		logger:      log.Logger.With().Str("component", "console").Logger(),
	}
}

func (c *ConsoleChannel) Name() string {
	return ConsoleName
}

func (c *ConsoleChannel) Start(ctx context.Context, dispatch DispatchFunc) error {
	if dispatch == nil {
		return fmt.Errorf("dispatch function is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return fmt.Errorf("console channel already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(ctx, dispatch, c.done)
	return nil
}

func (c *ConsoleChannel) readLoop(ctx context.Context, dispatch DispatchFunc, done chan struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(c.in)
	seq := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		seq++
		dispatch(ctx, orchestrator.Inbound{
			Channel:     ConsoleName,
			Room:        ConsoleRoom,
			Participant: c.participant,
			Text:        line,
			MessageID:   strconv.Itoa(seq),
		})
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error().Err(err).Msg("Console input failed")
	}
}

// Done is closed when the input is exhausted or the channel stops.
func (c *ConsoleChannel) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *ConsoleChannel) Stop(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *ConsoleChannel) Send(_ context.Context, _ string, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s> %s\n", c.botName, text)
	return err
}
