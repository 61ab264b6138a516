// Package loader decodes image files on background workers and turns them
// into textures and scene items on the owner.
package loader

import (
	"context"
	"errors"
	"fmt"

	"github.com/Swind/go-async-loader/core"
	"github.com/google/uuid"
)

// Options configures a Loader.
type Options struct {
	// MaxTextureSize bounds the longest side of decoded images. 0 disables.
	MaxTextureSize int

	// Logger defaults to core.NewDefaultLogger().
	Logger core.Logger

	// Busy is shared with other operations when set; otherwise the loader
	// owns one.
	Busy *core.BusyTracker
}

// Loader runs the load-image workflow: decode off the owner, then create a
// texture and place an item on the owner.
type Loader struct {
	pool        core.Submitter
	completions core.CompletionSink
	scene       *Scene
	maxSize     int
	logger      core.Logger
	busy        *core.BusyTracker

	// Owner-only.
	lastErr error
	loaded  int
	failed  int
}

// New returns a loader that submits to pool and publishes to completions.
// scene must only be used on the goroutine draining completions.
func New(pool core.Submitter, completions core.CompletionSink, scene *Scene, opts Options) *Loader {
	if opts.Logger == nil {
		opts.Logger = core.NewDefaultLogger()
	}
	if opts.Busy == nil {
		opts.Busy = &core.BusyTracker{}
	}
	return &Loader{
		pool:        pool,
		completions: completions,
		scene:       scene,
		maxSize:     opts.MaxTextureSize,
		logger:      opts.Logger,
		busy:        opts.Busy,
	}
}

// Load starts loading path and returns the request id used in its log
// records. The busy indicator is raised until the result has been applied.
// If the pool rejects the work the error is returned and nothing is applied.
func (l *Loader) Load(path string) (string, error) {
	id := uuid.NewString()
	op := core.BackgroundOperation[*Image]{
		Name: "load " + path,
		Busy: l.busy,
		Run: func(ctx context.Context) (*Image, error) {
			return DecodeFile(ctx, path, l.maxSize)
		},
		Apply: func(ctx context.Context, img *Image) {
			item, err := l.scene.AddImage(ctx, img)
			if err != nil {
				l.fail(id, path, err)
				return
			}
			l.loaded++
			l.logger.Info("image loaded",
				core.F("request", id),
				core.F("path", path),
				core.F("texture", item.Texture),
				core.F("width", img.Width()),
				core.F("height", img.Height()),
			)
		},
		OnError: func(ctx context.Context, err error) {
			l.fail(id, path, err)
		},
	}

	l.logger.Debug("image load submitted", core.F("request", id), core.F("path", path))
	if err := core.PostBackgroundOperation(l.pool, l.completions, op); err != nil {
		return id, fmt.Errorf("load %s: %w", path, err)
	}
	return id, nil
}

func (l *Loader) fail(id, path string, err error) {
	l.failed++
	l.lastErr = err

	var panicErr *core.TaskExecutionError
	if errors.As(err, &panicErr) {
		l.logger.Error("loader", core.F("request", id), core.F("path", path), core.F("error", err), core.F("stack", string(panicErr.Stack)))
		return
	}
	l.logger.Error("loader", core.F("request", id), core.F("path", path), core.F("error", err))
}

// Busy reports whether any load is outstanding. Safe from any goroutine.
func (l *Loader) Busy() bool { return l.busy.Busy() }

// Pending returns the number of outstanding loads. Safe from any goroutine.
func (l *Loader) Pending() int { return l.busy.Pending() }

// LastError returns the most recent failure. Owner-only.
func (l *Loader) LastError() error { return l.lastErr }

// Loaded returns the number of successful loads. Owner-only.
func (l *Loader) Loaded() int { return l.loaded }

// Failed returns the number of failed loads. Owner-only.
func (l *Loader) Failed() int { return l.failed }

// Scene returns the scene items are added to. Owner-only.
func (l *Loader) Scene() *Scene { return l.scene }
