package labelconv

// The error taxonomy for conversion runs.
//
// Malformed labels are recoverable: codecs report them to the Diagnostics and
// skip the offending line or image. The other three kinds abort the run.

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// MalformedLabelError reports a label line or file that violates its format's
// required structure (wrong field count, non-numeric value, out-of-range
// coordinate).
type MalformedLabelError struct {
	msg string
}

func (e *MalformedLabelError) Error() string { return e.msg }

func malformedf(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&MalformedLabelError{msg: fmt.Sprintf(format, args...)})
}

// IsMalformed reports whether err is a MalformedLabelError.
func IsMalformed(err error) bool {
	var e *MalformedLabelError
	return errors.As(err, &e)
}

// CategoryReferenceError reports a label that references a category name or
// id absent from the resolved category set. Always fatal for the run:
// dropping the label silently would corrupt downstream training data, and
// auto-registering it would make category ids non-deterministic.
type CategoryReferenceError struct {
	msg string
}

func (e *CategoryReferenceError) Error() string { return e.msg }

func categoryRefErrf(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&CategoryReferenceError{msg: fmt.Sprintf(format, args...)})
}

// IsCategoryReference reports whether err is a CategoryReferenceError.
func IsCategoryReference(err error) bool {
	var e *CategoryReferenceError
	return errors.As(err, &e)
}

// ConfigurationError reports missing or invalid format-specific
// configuration, detected before any I/O begins.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string { return e.msg }

func configErrf(format string, args ...interface{}) error {
	return pkgerrors.WithStack(&ConfigurationError{msg: fmt.Sprintf(format, args...)})
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}

// StructuralParseError reports a top-level container (JSON, XML, YAML) that
// is itself not parseable.
type StructuralParseError struct {
	Path string
	err  error
}

func (e *StructuralParseError) Error() string {
	return fmt.Sprintf("cannot parse %q: %v", e.Path, e.err)
}

func (e *StructuralParseError) Unwrap() error { return e.err }

func structuralErr(path string, err error) error {
	return pkgerrors.WithStack(&StructuralParseError{Path: path, err: err})
}

// IsStructuralParse reports whether err is a StructuralParseError.
func IsStructuralParse(err error) bool {
	var e *StructuralParseError
	return errors.As(err, &e)
}
