package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrNotReady    = errors.New("PDF renderer is still loading, please try again shortly")
	ErrLoadFailure = errors.New("PDF renderer failed to load")
)

// LoadFailure wraps the error returned by a Loader
type LoadFailure struct {
	Cause error
}

func (e *LoadFailure) Error() string {
	return fmt.Sprintf("%s: %v", ErrLoadFailure, e.Cause)
}

func (e *LoadFailure) Unwrap() []error {
	return []error{ErrLoadFailure, e.Cause}
}

// Bridge owns the one-time initialization of an Engine.
// All callers share a single load; its outcome, success or failure, is kept
// for the life of the Bridge.
type Bridge struct {
	load  Loader
	start sync.Once
	done  chan struct{}
	ready atomic.Bool

	engine Engine
	err    error
}

// NewBridge wraps load without running it
func NewBridge(load Loader) *Bridge {
	return &Bridge{load: load, done: make(chan struct{})}
}

// Start begins loading in the background if it has not started yet
func (b *Bridge) Start() {
	b.start.Do(func() {
		go b.run()
	})
}

// run executes the loader detached from any caller's context
func (b *Bridge) run() {
	started := time.Now()
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered while loading PDF renderer", "panic", r)
			b.err = &LoadFailure{Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	Logger.Info("Loading PDF renderer")
	engine, err := b.load(context.Background())
	if err != nil {
		Logger.Error("PDF renderer failed to load", "error", err)
		b.err = &LoadFailure{Cause: err}
		return
	}
	if engine == nil {
		b.err = &LoadFailure{Cause: errors.New("loader returned no engine")}
		return
	}
	b.engine = engine
	b.ready.Store(true)
	Logger.Info("PDF renderer ready", "took", time.Since(started))
}

// EnsureReady starts the load if needed and waits for it.
// It returns nil once the engine is available, or the cached LoadFailure.
// If ctx ends first the load keeps going for other callers.
func (b *Bridge) EnsureReady(ctx context.Context) error {
	if b.ready.Load() {
		return nil
	}
	b.Start()
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ready reports whether the engine is loaded
func (b *Bridge) Ready() bool {
	return b.ready.Load()
}

// Err returns the load failure, or nil while loading or after success
func (b *Bridge) Err() error {
	select {
	case <-b.done:
		return b.err
	default:
		return nil
	}
}

// Engine returns the loaded engine, ErrNotReady while loading, or the load failure
func (b *Bridge) Engine() (Engine, error) {
	if b.ready.Load() {
		return b.engine, nil
	}
	if err := b.Err(); err != nil {
		return nil, err
	}
	return nil, ErrNotReady
}

// Close releases the engine if it was loaded
func (b *Bridge) Close() error {
	if !b.ready.Load() {
		return nil
	}
	return b.engine.Close()
}
