package jobcore

import (
	"fmt"
	"io"
	"strings"
)

// ResultKind selects the stdout line format.
type ResultKind int

const (
	// ResultPath prints "<path>".
	ResultPath ResultKind = iota
	// ResultPathWithSeed prints "<path>:<seed>".
	ResultPathWithSeed
	// ResultText prints free text collapsed to one line.
	ResultText
)

// Result is the success outcome of a job.
type Result struct {
	Kind ResultKind
	Path string // Slash-separated, relative to the working root
	Seed Seed
	Text string
}

// PathResult reports an output file.
func PathResult(path string) Result {
	return Result{Kind: ResultPath, Path: path}
}

// SeededPathResult reports an output file and the seed that produced it.
func SeededPathResult(path string, seed Seed) Result {
	return Result{Kind: ResultPathWithSeed, Path: path, Seed: seed}
}

// TextResult reports generated text.
func TextResult(text string) Result {
	return Result{Kind: ResultText, Text: text}
}

// Line renders the result without the trailing newline.
func (r Result) Line() string {
	switch r.Kind {
	case ResultPathWithSeed:
		return fmt.Sprintf("%s:%d", r.Path, int64(r.Seed))
	case ResultText:
		return singleLine(r.Text)
	default:
		return r.Path
	}
}

// Emit writes the result as exactly one line.
func Emit(w io.Writer, r Result) error {
	_, err := io.WriteString(w, r.Line()+"\n")
	return err
}

// singleLine joins the non-empty lines of s with single spaces.
func singleLine(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	parts := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}
