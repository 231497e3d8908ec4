package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/luna/internal/observability"
	"github.com/harun/luna/pkg/prompt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPersonaDebounce = 100 * time.Millisecond

// LoadPersona reads a persona preamble file.
func LoadPersona(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read persona file: %w", err)
	}
	return string(data), nil
}

// PersonaWatcher reloads the persona preamble when its file changes.
type PersonaWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	persona  *prompt.Persona
	debounce time.Duration
	logger   zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewPersonaWatcher creates a watcher for path that updates persona.
// The file's directory is watched so editors that replace the file on
// save are still picked up.
func NewPersonaWatcher(path string, persona *prompt.Persona, debounce time.Duration) (*PersonaWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("persona file path is required")
	}
	if persona == nil {
		return nil, fmt.Errorf("persona is required")
	}
	if debounce <= 0 {
		debounce = defaultPersonaDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve persona path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &PersonaWatcher{
		watcher:  watcher,
		path:     abs,
		persona:  persona,
		debounce: debounce,
		logger:   log.Logger.With().Str("component", "persona_watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start loads the current file, if any, and begins watching.
func (w *PersonaWatcher) Start() error {
	if _, err := os.Stat(w.path); err == nil {
		w.reload()
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch persona directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Persona watcher started")
	return nil
}

// Stop stops the watcher
func (w *PersonaWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Persona watcher stopped")
	return nil
}

func (w *PersonaWatcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *PersonaWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

func (w *PersonaWatcher) reload() {
	text, err := LoadPersona(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Keeping previous persona")
		return
	}

	w.persona.Set(text)

	w.logger.Info().
		Str("path", w.path).
		Int("chars", len(w.persona.Preamble())).
		Msg("Persona reloaded")

	observability.RecordConfigAudit(context.Background(), "persona_reloaded", "persona_watcher", map[string]interface{}{
		"path": w.path,
	})
}
