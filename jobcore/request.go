package jobcore

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one of the generation jobs.
type Kind string

const (
	KindImage     Kind = "image"
	KindImageEdit Kind = "image-edit"
	KindDocVideo  Kind = "document-video"
	KindVideo     Kind = "video"
	KindStory     Kind = "story"
	KindPrompt    Kind = "prompt"
)

// Argument names understood by ParseRequest.
const (
	ArgPrompt      = "prompt"
	ArgContentID   = "contentId"
	ArgSeed        = "seedToken"
	ArgSourceImage = "base64Image"
	ArgSourceMIME  = "mimeType"
	ArgSourcePath  = "sourcePath"
	ArgDocument    = "documentPath"
	ArgUserPrompt  = "userPrompt"
	ArgInstruction = "systemInstruction"
)

// Spec describes a job's command line.
type Spec struct {
	Kind    Kind
	Program string   // Program name shown in the usage line
	Args    []string // Required positional arguments, in order
	Options []string // Optional trailing positional arguments
}

// Usage returns the one-line usage message.
func (s Spec) Usage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage: %s", s.Program)
	for _, a := range s.Args {
		fmt.Fprintf(&b, " <%s>", a)
	}
	for _, a := range s.Options {
		fmt.Fprintf(&b, " [%s]", a)
	}
	return b.String()
}

// Request holds the parsed arguments of one job invocation.
// It is built once and never mutated.
type Request struct {
	Kind        Kind
	Prompt      string
	ContentID   string
	SeedToken   string
	SeedGiven   bool
	SourceImage string // base64 payload, image-edit only
	SourceMIME  string
	SourcePath  string // document or story source
	Instruction string
}

// ErrUsage marks argument errors.
var ErrUsage = errors.New("invalid arguments")

// ParseRequest maps positional args onto a Request according to spec.
// A count outside [len(Args), len(Args)+len(Options)] or an unusable content
// identifier returns a CodeUsage *JobError.
func ParseRequest(spec Spec, args []string) (Request, error) {
	min := len(spec.Args)
	max := min + len(spec.Options)
	if len(args) < min || len(args) > max {
		return Request{}, &JobError{
			Code: CodeUsage,
			Err:  fmt.Errorf("%w: expected %d to %d arguments, got %d", ErrUsage, min, max, len(args)),
		}
	}

	req := Request{Kind: spec.Kind}
	names := append(append([]string{}, spec.Args...), spec.Options...)
	for i, value := range args {
		switch names[i] {
		case ArgPrompt, ArgUserPrompt:
			req.Prompt = value
		case ArgContentID:
			req.ContentID = value
		case ArgSeed:
			req.SeedToken = value
			req.SeedGiven = true
		case ArgSourceImage:
			req.SourceImage = value
		case ArgSourceMIME:
			req.SourceMIME = value
		case ArgSourcePath, ArgDocument:
			req.SourcePath = value
		case ArgInstruction:
			req.Instruction = value
		}
	}

	if hasArg(names, ArgContentID) {
		if err := ValidateContentID(req.ContentID); err != nil {
			return Request{}, &JobError{Code: CodeUsage, Err: err}
		}
	}
	return req, nil
}

// ValidateContentID rejects identifiers that cannot be used inside a file name.
func ValidateContentID(id string) error {
	switch {
	case strings.TrimSpace(id) == "":
		return fmt.Errorf("%w: content identifier is empty", ErrUsage)
	case id == "." || id == ".." || strings.Contains(id, ".."):
		return fmt.Errorf("%w: content identifier %q must not contain \"..\"", ErrUsage, id)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: content identifier %q must not contain path separators", ErrUsage, id)
	}
	return nil
}

func hasArg(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
