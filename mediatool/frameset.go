package mediatool

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mediagen/logging"
)

// Frame is one still image in a FrameSet.
type Frame struct {
	Index int
	Path  string
}

// FrameSet is an ordered set of numbered image files in a private scratch
// directory. Frames are named <prefix>NNN.png so an encoder can read them
// with a printf-style pattern.
type FrameSet struct {
	dir    string
	prefix string
	frames []Frame
	logger *logging.Logger
}

// NewFrameSet creates dir (and parents) for a new, empty frame set. A dir
// left behind by an interrupted run is removed first so its frames cannot
// match the encoder pattern.
func NewFrameSet(dir, prefix string, logger *logging.Logger) (*FrameSet, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if _, err := os.Lstat(dir); err == nil {
		logger.Warn("removing stale frame directory", zap.String("directory", dir))
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("remove stale frame directory: %w", err)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create frame directory: %w", err)
	}
	return &FrameSet{dir: dir, prefix: prefix, logger: logger}, nil
}

// Dir returns the scratch directory.
func (fs *FrameSet) Dir() string { return fs.dir }

// Len returns the number of frames.
func (fs *FrameSet) Len() int { return len(fs.frames) }

// Frames returns the frames in order.
func (fs *FrameSet) Frames() []Frame {
	return append([]Frame(nil), fs.frames...)
}

// Pattern returns the printf-style path pattern matching every frame.
func (fs *FrameSet) Pattern() string {
	return filepath.Join(fs.dir, fs.prefix+"%03d.png")
}

// Reserve registers the next frame and returns it without writing anything.
// Tools that write the file themselves use Reserve so a partial write is
// still cleaned up.
func (fs *FrameSet) Reserve() Frame {
	index := len(fs.frames)
	frame := Frame{
		Index: index,
		Path:  filepath.Join(fs.dir, fmt.Sprintf("%s%03d.png", fs.prefix, index)),
	}
	fs.frames = append(fs.frames, frame)
	return frame
}

// AddPNG writes encoded PNG data as the next frame.
func (fs *FrameSet) AddPNG(data []byte) (Frame, error) {
	frame := fs.Reserve()
	if err := os.WriteFile(frame.Path, data, 0644); err != nil {
		return frame, fmt.Errorf("write frame %d: %w", frame.Index, err)
	}
	return frame, nil
}

// Cleanup removes every frame and then the directory. Failures are logged
// as warnings and counted, never returned: cleanup cannot fail a job.
func (fs *FrameSet) Cleanup() (removed, failed int) {
	for _, frame := range fs.frames {
		err := os.Remove(frame.Path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, os.ErrNotExist):
			// reserved but never written
		default:
			failed++
			fs.logger.Warn("failed to remove frame",
				zap.String("file", frame.Path),
				zap.Error(err))
		}
	}

	// RemoveAll also catches stray files a tool wrote beside the frames
	if err := os.RemoveAll(fs.dir); err != nil {
		failed++
		fs.logger.Warn("failed to remove frame directory",
			zap.String("directory", fs.dir),
			zap.Error(err))
	}

	fs.logger.Debug("frame set cleaned up",
		zap.String("directory", fs.dir),
		zap.Int("removed", removed),
		zap.Int("failed", failed))
	return removed, failed
}

// WithFrameSet creates a frame set, passes it to fn and removes it afterwards
// whatever fn returns, including when fn panics.
func WithFrameSet(dir, prefix string, logger *logging.Logger, fn func(fs *FrameSet) error) error {
	fs, err := NewFrameSet(dir, prefix, logger)
	if err != nil {
		return err
	}
	defer fs.Cleanup()
	return fn(fs)
}
