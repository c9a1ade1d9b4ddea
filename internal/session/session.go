package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"waggletag/internal/label"
	"waggletag/internal/layout"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

// State describes what the controller is currently doing.
type State string

const (
	StateIdle    State = "idle"
	StateViewing State = "viewing"
	StateSaving  State = "saving"
)

// ErrMutationInFlight is returned when a label save arrives while a
// previous save on the same session has not finished. The caller
// retries once the in-flight save resolves.
var ErrMutationInFlight = services.Wrap(services.ErrConflict, "session", "set-label",
	"another label mutation is in flight", nil)

// ErrNoSession is returned for cursor operations before Open.
var ErrNoSession = errors.New("no labeling session open")

// View is everything the UI needs to present one snippet.
type View struct {
	Identity  snippet.Identity
	VideoPath string
	Label     label.Label
}

// Controller walks a filtered, ordered subset of the snippet library
// and applies label changes for one reviewer. Cursor movement is
// serialized; saves additionally carry a single-in-flight guard so two
// racing mutations can never interleave store and filesystem effects.
type Controller struct {
	labels *store.Store
	layout *layout.Manager
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	entries []store.Entry
	cursor  int

	saving atomic.Bool
}

// NewController constructs a controller over the given store and layout.
func NewController(labels *store.Store, lay *layout.Manager, logger *slog.Logger) (*Controller, error) {
	if labels == nil || lay == nil {
		return nil, errors.New("session requires store and layout")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Controller{
		labels: labels,
		layout: lay,
		logger: logging.NewComponentLogger(logger, "session"),
		state:  StateIdle,
	}, nil
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saving.Load() {
		return StateSaving
	}
	return c.state
}

// Open loads the filtered identity list and positions the cursor at
// its start. Opening replaces any previous session. Returns the number
// of snippets in the session.
func (c *Controller) Open(ctx context.Context, filter store.Filter) (int, error) {
	entries, err := c.labels.Query(ctx, filter)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.cursor = 0
	if len(entries) == 0 {
		c.state = StateIdle
	} else {
		c.state = StateViewing
	}
	c.logger.Info("session opened", logging.Int("snippets", len(entries)))
	return len(entries), nil
}

// Current returns the identity under the cursor.
func (c *Controller) Current() (snippet.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || len(c.entries) == 0 {
		return snippet.Identity{}, ErrNoSession
	}
	return c.entries[c.cursor].Identity, nil
}

// Next advances the cursor. At the end of the list the cursor stays on
// the last snippet.
func (c *Controller) Next() (snippet.Identity, error) {
	return c.move(1)
}

// Previous moves the cursor back, clamped at the first snippet.
func (c *Controller) Previous() (snippet.Identity, error) {
	return c.move(-1)
}

func (c *Controller) move(delta int) (snippet.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || len(c.entries) == 0 {
		return snippet.Identity{}, ErrNoSession
	}
	next := c.cursor + delta
	if next < 0 {
		next = 0
	}
	if next > len(c.entries)-1 {
		next = len(c.entries) - 1
	}
	c.cursor = next
	return c.entries[c.cursor].Identity, nil
}

// JumpTo positions the cursor on the snippet with the given key.
func (c *Controller) JumpTo(key string) (snippet.Identity, error) {
	id, err := snippet.ParseKey(key)
	if err != nil {
		return snippet.Identity{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || len(c.entries) == 0 {
		return snippet.Identity{}, ErrNoSession
	}
	for i, entry := range c.entries {
		if entry.Identity == id {
			c.cursor = i
			return id, nil
		}
	}
	return snippet.Identity{}, services.Wrap(services.ErrNotFound, "session", "jump",
		"snippet not in the current session", nil)
}

// Position reports the cursor index and session length.
func (c *Controller) Position() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor, len(c.entries)
}

// Load resolves the video path and durable label for a snippet. When
// the on-disk bucket disagrees with the stored label, the video is
// moved back under the label's bucket before the view is returned, so
// a crash between a label write and its relocation heals on the next
// view instead of persisting.
func (c *Controller) Load(ctx context.Context, id snippet.Identity) (View, error) {
	lbl, err := c.labels.Get(ctx, id)
	if err != nil {
		return View{}, err
	}

	path, status, err := c.layout.Locate(id)
	if err != nil {
		return View{}, err
	}
	if status != lbl.TagStatus {
		c.logger.Warn("healing misplaced video",
			logging.String(logging.FieldSnippet, id.Key()),
			logging.String("disk_bucket", label.Bucket(status)),
			logging.String("label_bucket", lbl.Bucket()))
		if err := c.layout.Relocate(ctx, id, status, lbl.TagStatus); err != nil {
			return View{}, err
		}
		path = c.layout.PathFor(id, lbl.TagStatus)
	}

	return View{Identity: id, VideoPath: path, Label: lbl}, nil
}

// SetLabel applies a reviewer decision: the store write lands first,
// then the video moves to the bucket the new label prescribes. A
// second mutation arriving while one is in flight is rejected with
// ErrMutationInFlight rather than queued.
func (c *Controller) SetLabel(ctx context.Context, id snippet.Identity, update label.Label) (label.Label, error) {
	if _, ok := label.ParseTagStatus(string(update.TagStatus)); !ok {
		return label.Label{}, services.Wrap(services.ErrValidation, "session", "set-label",
			"unknown tag status", nil)
	}
	if _, ok := label.ParseDanceType(string(update.DanceType)); !ok {
		return label.Label{}, services.Wrap(services.ErrValidation, "session", "set-label",
			"unknown dance type", nil)
	}

	if !c.saving.CompareAndSwap(false, true) {
		return label.Label{}, ErrMutationInFlight
	}
	defer c.saving.Store(false)

	var previous label.TagStatus
	saved, err := c.labels.Set(ctx, id, func(l *label.Label) error {
		previous = l.TagStatus
		l.TagStatus = update.TagStatus
		l.DanceType = update.DanceType
		source := update.Source
		if source == "" || source == label.SourceUnset {
			source = label.SourceHumanCorrected
		}
		l.Source = source
		return nil
	})
	if err != nil {
		return label.Label{}, err
	}

	if err := c.layout.Relocate(ctx, id, previous, saved.TagStatus); err != nil {
		// The durable label already changed; the video catches up on
		// the next Load.
		c.logger.Warn("label saved but relocation failed",
			logging.String(logging.FieldSnippet, id.Key()),
			logging.Error(err))
		return saved, err
	}

	c.refreshEntry(id, saved)
	c.logger.Info("label saved",
		logging.String(logging.FieldSnippet, id.Key()),
		logging.String("tag_status", string(saved.TagStatus)),
		logging.String("dance_type", string(saved.DanceType)))
	return saved, nil
}

func (c *Controller) refreshEntry(id snippet.Identity, lbl label.Label) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		if c.entries[i].Identity == id {
			c.entries[i].Label = lbl
			return
		}
	}
}
