// Package asm implements the Agni assembler: a line-oriented lexer, a
// two-pass code generator (declarations/sizing, then operand resolution
// and emission), and the diagnostic formatting the reference toolchain
// uses for listing errors and warnings.
package asm

import (
	"fmt"

	"github.com/kiplingw/agni-go/exe"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ListingError is a producer-side error tied to a specific source line,
// rendered as "<file>:<line>: error: <reason>".
type ListingError struct {
	File string
	Line int
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("%s:%d: error: %s", e.File, e.Line, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// Assemble translates a complete source listing (one string per line)
// into a checksummed Agni executable image. file is used only for
// diagnostic formatting. Warnings (e.g. an unset SetStackSize falling
// back to the default) are logged, not returned, matching the reference
// assembler's non-fatal warning stream.
func Assemble(file string, source []string, log *logrus.Logger) ([]byte, error) {
	if log == nil {
		log = logrus.New()
	}

	tokens, err := tokenize(source)
	if err != nil {
		return nil, wrapListingError(file, err)
	}

	mod, err := runPass1(tokens)
	if err != nil {
		return nil, wrapListingError(file, err)
	}
	for _, w := range mod.warnings {
		log.Warnf("%s: warning: %s", file, w)
	}

	executable, err := runPass2(tokens, mod)
	if err != nil {
		return nil, wrapListingError(file, err)
	}

	image, err := exe.Encode(executable)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: error", file)
	}

	return image, nil
}

// wrapListingError extracts the "line %d: ..." convention used
// throughout pass1/pass2/lexer errors and re-renders it as a proper
// ListingError carrying the source file name. Errors that don't follow
// that convention are returned as general errors instead.
func wrapListingError(file string, err error) error {
	var line int
	var reason string
	if n, scanErr := fmt.Sscanf(err.Error(), "line %d:", &line); scanErr == nil && n == 1 {
		reason = err.Error()
		if idx := indexAfterLinePrefix(reason); idx >= 0 {
			reason = reason[idx:]
		}
		return &ListingError{File: file, Line: line, Err: errors.New(reason)}
	}
	return errors.Wrapf(err, "%s: error", file)
}

func indexAfterLinePrefix(s string) int {
	const marker = ": "
	for i := 0; i+len(marker) <= len(s); i++ {
		if s[i:i+len(marker)] == marker {
			return i + len(marker)
		}
	}
	return -1
}
