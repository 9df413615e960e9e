package envtree

import (
	"errors"
	"fmt"
	"time"

	"github.com/presbrey/projectenv/propfile"
)

// FailureKind classifies a skipped directory or file
type FailureKind string

const (
	KindDiscovery FailureKind = "discovery"
	KindParse     FailureKind = "parse"
	KindIO        FailureKind = "io"
)

// FileFailure records a directory or file that did not contribute to the store
type FileFailure struct {
	Path string
	Kind FailureKind
	Err  error
}

func (f FileFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Kind, f.Path, f.Err)
}

func (f FileFailure) Unwrap() error {
	return f.Err
}

// Layer describes what one hierarchy node contributed
type Layer struct {
	Dir     string
	Files   []string
	Entries int
}

// Report summarizes a single Load
type Report struct {
	Session     string
	HostEntries int
	Layers      []Layer
	Failures    []FileFailure
	Duration    time.Duration
}

// Files returns every applied file in application order
func (r *Report) Files() []string {
	var files []string
	for _, layer := range r.Layers {
		files = append(files, layer.Files...)
	}
	return files
}

// Err joins all recorded failures, or returns nil when there were none
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

func kindOf(err error) FailureKind {
	var pe *propfile.ParseError
	if errors.As(err, &pe) {
		return KindParse
	}
	return KindIO
}
