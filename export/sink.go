package export

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink receives finished files, the equivalent of a browser download
type Sink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(ctx context.Context, name string, data []byte) error

func (f SinkFunc) Save(ctx context.Context, name string, data []byte) error {
	return f(ctx, name, data)
}

// DirSink writes every file into one directory
type DirSink struct {
	Dir string
}

// NewDirSink creates dir if needed
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("unable to create output directory %s: %w", dir, err)
	}
	return &DirSink{Dir: dir}, nil
}

// Save writes data under dir, ignoring any directory part of name
func (s *DirSink) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	Logger.Debug("Saved export", "path", path, "bytes", len(data))
	return nil
}

// ExportOne re-encodes img with o and hands it to sink as page_<index+1>.<ext>
func ExportOne(ctx context.Context, sink Sink, index int, img image.Image, o Options) (string, error) {
	name := FileName(index, o.Format)
	data, err := EncodeBytes(img, o)
	if err != nil {
		return name, fmt.Errorf("unable to encode %s: %w", name, err)
	}
	if err := sink.Save(ctx, name, data); err != nil {
		return name, err
	}
	return name, nil
}

// Schedule tracks a staggered bulk export. Nothing in it reports back to the
// caller that triggered the export; it exists so a process can wait before exiting.
type Schedule struct {
	files    []string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu     sync.Mutex
	failed []string
	saved  int
}

// ExportAll exports every image on one goroutine, page i no earlier than
// i*stagger after the call, so files reach sink strictly in page order.
// It returns at once; individual failures are only logged.
func ExportAll(ctx context.Context, sink Sink, images []image.Image, o Options, stagger time.Duration) (*Schedule, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	s := &Schedule{
		files: make([]string, len(images)),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for i := range images {
		s.files[i] = FileName(i, o.Format)
	}

	go s.run(ctx, sink, images, o, stagger, time.Now())

	Logger.Info("Bulk export scheduled", "files", len(images), "format", o.Format, "stagger", stagger)
	return s, nil
}

func (s *Schedule) run(ctx context.Context, sink Sink, images []image.Image, o Options, stagger time.Duration, start time.Time) {
	defer close(s.done)

	for i, img := range images {
		if wait := time.Until(start.Add(time.Duration(i) * stagger)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.stop:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				Logger.Warn("Bulk export cancelled", "remaining", len(images)-i, "error", ctx.Err())
				return
			}
		}
		select {
		case <-s.stop:
			return
		default:
		}

		name, err := ExportOne(ctx, sink, i, img, o)
		s.mu.Lock()
		if err != nil {
			Logger.Warn("Bulk export file failed", "file", name, "error", err)
			s.failed = append(s.failed, name)
		} else {
			s.saved++
		}
		s.mu.Unlock()
	}
}

// Files lists the scheduled file names in page order
func (s *Schedule) Files() []string {
	return append([]string(nil), s.files...)
}

// Wait blocks until every page has been exported or the schedule stopped
func (s *Schedule) Wait() {
	<-s.done
}

// Stop skips pages that have not started yet; a page already being saved finishes
func (s *Schedule) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Saved counts files handed to the sink without error
func (s *Schedule) Saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved
}

// Failed lists the files that could not be saved
func (s *Schedule) Failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failed...)
}
