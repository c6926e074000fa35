package mediatool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ErrNoFrames is returned when asked to encode an empty frame set.
var ErrNoFrames = errors.New("mediatool: no frames to encode")

// Profile is a fixed ffmpeg encoding recipe.
type Profile struct {
	InputFramerate  int // Frames per second the stills are shown at
	OutputFramerate int // 0 keeps the input rate
	Width, Height   int // 0 keeps the source size; otherwise letterboxed
	Codec           string
	PixelFormat     string
}

// DocumentProfile shows each page for one second in a 1280x720, 30 fps H.264 video.
var DocumentProfile = Profile{
	InputFramerate:  1,
	OutputFramerate: 30,
	Width:           1280,
	Height:          720,
	Codec:           "libx264",
	PixelFormat:     "yuv420p",
}

// ClipProfile encodes generated motion frames at the given rate, unscaled.
func ClipProfile(fps int) Profile {
	return Profile{
		InputFramerate: fps,
		Codec:          "libx264",
		PixelFormat:    "yuv420p",
	}
}

// Args builds the ffmpeg argument list reading inputPattern and writing output.
func (p Profile) Args(inputPattern, output string) []string {
	args := []string{
		"-framerate", strconv.Itoa(p.InputFramerate),
		"-i", inputPattern,
		"-c:v", p.Codec,
	}
	if p.OutputFramerate > 0 {
		args = append(args, "-r", strconv.Itoa(p.OutputFramerate))
	}
	args = append(args, "-pix_fmt", p.PixelFormat)
	if p.Width > 0 && p.Height > 0 {
		args = append(args, "-vf", fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=%s",
			p.Width, p.Height, p.Width, p.Height, p.PixelFormat))
	}
	return append(args, "-y", output)
}

// Encoder turns a frame set into a video file with ffmpeg.
type Encoder struct {
	Tool    *Tool
	Profile Profile
}

// NewEncoder returns an Encoder for the ffmpeg executable at path.
func NewEncoder(tool *Tool, profile Profile) *Encoder {
	return &Encoder{Tool: tool, Profile: profile}
}

// Encode writes frames to output. The frame set is left for the caller's
// WithFrameSet to remove.
func (e *Encoder) Encode(ctx context.Context, frames *FrameSet, output string) error {
	if frames.Len() == 0 {
		return ErrNoFrames
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	_, err := e.Tool.Run(ctx, e.Profile.Args(frames.Pattern(), output)...)
	return err
}
