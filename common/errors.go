package common

import (
	"errors"
	"fmt"
)

// DiagnosticLimit is the maximum length in bytes of a driver diagnostic kept on an Error.
// Longer messages are truncated.
const DiagnosticLimit = 512

// ErrorKind classifies failures raised while loading kernels, building programs and
// allocating simulation storage.
type ErrorKind int

const (
	// KindResourceOpen indicates a kernel source file could not be opened.
	KindResourceOpen ErrorKind = iota + 1

	// KindResourceRead indicates a kernel source file could not be read in full.
	KindResourceRead

	// KindStageCompile indicates the driver rejected a single shader stage.
	KindStageCompile

	// KindProgramLink indicates the driver could not link the compiled stages into a program.
	KindProgramLink

	// KindAllocation indicates the driver refused a buffer allocation. This is the only fatal kind.
	KindAllocation
)

var (
	// ErrResourceOpen is the sentinel matched by errors.Is for KindResourceOpen errors.
	ErrResourceOpen = errors.New("resource open failure")
	// ErrResourceRead is the sentinel matched by errors.Is for KindResourceRead errors.
	ErrResourceRead = errors.New("resource read failure")
	// ErrStageCompile is the sentinel matched by errors.Is for KindStageCompile errors.
	ErrStageCompile = errors.New("stage compile failure")
	// ErrProgramLink is the sentinel matched by errors.Is for KindProgramLink errors.
	ErrProgramLink = errors.New("program link failure")
	// ErrAllocation is the sentinel matched by errors.Is for KindAllocation errors.
	ErrAllocation = errors.New("allocation failure")
)

var kindSentinels = map[ErrorKind]error{
	KindResourceOpen: ErrResourceOpen,
	KindResourceRead: ErrResourceRead,
	KindStageCompile: ErrStageCompile,
	KindProgramLink:  ErrProgramLink,
	KindAllocation:   ErrAllocation,
}

func (k ErrorKind) String() string {
	switch k {
	case KindResourceOpen:
		return "ResourceOpenFailure"
	case KindResourceRead:
		return "ResourceReadFailure"
	case KindStageCompile:
		return "StageCompileFailure"
	case KindProgramLink:
		return "ProgramLinkFailure"
	case KindAllocation:
		return "AllocationFailure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the structured error reported by the shader, program and simulation layers.
// It carries the failure kind, the operation and subject it happened on, the bounded
// driver diagnostic (if any) and the underlying cause.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Op is the operation that failed, e.g. "compile", "link", "allocate".
	Op string
	// Subject names what the operation was acting on: a file path, stage key or buffer label.
	Subject string
	// Diagnostic is the driver-provided message, at most DiagnosticLimit bytes.
	Diagnostic string
	// Err is the underlying cause, may be nil.
	Err error
}

// NewError builds an Error, truncating the diagnostic to DiagnosticLimit bytes.
//
// Parameters:
//   - kind: the failure kind
//   - op: the operation that failed
//   - subject: the path, key or label the operation acted on
//   - diagnostic: the driver message, may be empty
//   - err: the underlying cause, may be nil
//
// Returns:
//   - *Error: the populated error
func NewError(kind ErrorKind, op, subject, diagnostic string, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Subject:    subject,
		Diagnostic: TruncateDiagnostic(diagnostic),
		Err:        err,
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s %q", e.Kind, e.Op, e.Subject)
	if e.Diagnostic != "" {
		msg += ": " + e.Diagnostic
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the ErrorKind of the first *Error in err's chain, or 0 if there is none.
//
// Parameters:
//   - err: the error to inspect
//
// Returns:
//   - ErrorKind: the kind, or 0 when err carries no *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsFatal reports whether err must terminate the run. Only allocation failures are fatal.
//
// Parameters:
//   - err: the error to inspect
//
// Returns:
//   - bool: true if err is an allocation failure
func IsFatal(err error) bool {
	return errors.Is(err, ErrAllocation)
}

// TruncateDiagnostic bounds a driver message to DiagnosticLimit bytes without splitting
// a UTF-8 sequence.
//
// Parameters:
//   - msg: the message to bound
//
// Returns:
//   - string: msg, or its longest valid prefix of at most DiagnosticLimit bytes
func TruncateDiagnostic(msg string) string {
	if len(msg) <= DiagnosticLimit {
		return msg
	}
	cut := DiagnosticLimit
	for cut > 0 && msg[cut]&0xC0 == 0x80 {
		cut--
	}
	return msg[:cut]
}
