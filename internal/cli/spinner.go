package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// stderr receives spinner frames.
var stderr io.Writer = os.Stderr

// interactive reports whether stderr is a terminal. Spinners stay silent
// otherwise so redirected output is not littered with frames.
func interactive() bool {
	f, ok := stderr.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a status line on stderr while a composition runs. The
// message can change mid-run, e.g. to count finished generators.
type Spinner struct {
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	start   sync.Once
	stop    sync.Once

	mu      sync.Mutex
	message string
	width   int // widest line drawn, for clearing
}

// newSpinner returns a spinner that stops on its own when ctx ends.
func newSpinner(ctx context.Context, message string) *Spinner {
	sctx, cancel := context.WithCancel(ctx)
	return &Spinner{
		parent:  ctx,
		ctx:     sctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		message: message,
	}
}

// Start begins the animation. On a non-terminal it only waits for Stop or
// cancellation. Calling Start twice has no effect.
func (s *Spinner) Start() {
	s.start.Do(func() {
		animate := interactive()
		go func() {
			defer close(s.stopped)
			ticker := time.NewTicker(80 * time.Millisecond)
			defer ticker.Stop()
			for i := 0; ; i++ {
				select {
				case <-s.ctx.Done():
					s.clear()
					return
				case <-ticker.C:
					if animate {
						s.draw(spinnerFrames[i%len(spinnerFrames)])
					}
				}
			}
		}()
	})
}

// Update replaces the message shown next to the spinner.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

func (s *Spinner) draw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := frame + " " + s.message
	s.width = max(s.width, len(line))
	fmt.Fprintf(stderr, "\r%s %s%s", styleIconSpinner.Render(frame), StyleDim.Render(s.message),
		strings.Repeat(" ", s.width-len(line)))
}

func (s *Spinner) clear() {
	if !interactive() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width > 0 {
		fmt.Fprintf(stderr, "\r%s\r", strings.Repeat(" ", s.width))
	}
}

// Stop ends the animation and clears the line. It is safe to call more
// than once, and before Start.
func (s *Spinner) Stop() {
	s.stop.Do(func() {
		s.cancel()
		started := true
		s.start.Do(func() { started = false })
		if started {
			<-s.stopped
		}
	})
}

// Canceled reports whether the spinner ended because its parent context
// did, rather than through Stop.
func (s *Spinner) Canceled() bool {
	return s.parent.Err() != nil
}
