// Package exception provides the error types and classification utilities used
// by the Tidal ETL engine. It standardizes errors raised during pipeline
// execution so that retry and skip policies can categorize them.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// errorRegistry maps error type names to prototype error instances.
// The instances are singletons compared against with errors.Is.
var errorRegistry = make(map[string]error)

// registryMutex protects access to errorRegistry.
var registryMutex sync.RWMutex

// RegisterErrorType registers an error prototype under a name. Registered
// names are used by IsErrorOfType to classify errors coming out of
// connectors and stores.
//
// Panics if name is empty or prototype is nil.
func RegisterErrorType(name string, prototype error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if name == "" {
		panic("Error type name cannot be empty")
	}
	if prototype == nil {
		panic(fmt.Sprintf("Cannot register nil prototype for name: %s", name))
	}

	errorRegistry[name] = prototype
}

// IsErrorTypeRegistered reports whether the given error type name is registered.
func IsErrorTypeRegistered(name string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, ok := errorRegistry[name]
	return ok
}

// ETLError is the error type raised by engine components. It carries the
// module where the error occurred, a message, the wrapped original error,
// and flags indicating whether it is retryable or skippable.
type ETLError struct {
	// Module indicates the component where the error occurred (e.g. "planner", "pool", "checkpoint").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether this error is skippable.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewETLError creates a new ETLError.
// module: the component where the error occurred.
// message: the error message.
// originalErr: the original error to wrap (may be nil).
// isSkippable: whether this error is skippable.
// isRetryable: whether this error is retryable.
func NewETLError(module, message string, originalErr error, isSkippable, isRetryable bool) *ETLError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &ETLError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewETLErrorf creates a new ETLError using a format string. Optional flags
// and an error are extracted from the end of the variadic arguments in the
// order: [isSkippable bool], [isRetryable bool], [originalErr error]. The
// remaining arguments feed fmt.Sprintf.
//
// Examples:
// NewETLErrorf("connector", "failed to read chunk %d", 7, true, true, io.EOF)
// -> message: "failed to read chunk 7", isSkippable: true, isRetryable: true, originalErr: io.EOF
func NewETLErrorf(module, format string, a ...interface{}) *ETLError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}

	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}

	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	message := fmt.Sprintf(format, args...)

	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &ETLError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// Error implements the error interface.
func (e *ETLError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *ETLError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *ETLError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *ETLError) IsSkippable() bool {
	return e.isSkippable
}

// IsETLError reports whether err is of type ETLError.
func IsETLError(err error) bool {
	if err == nil {
		return false
	}
	var e *ETLError
	return errors.As(err, &e)
}

// IsTemporary determines whether an error is temporary (network blip,
// transient DB issue). Used by retry logic. For an ETLError the IsRetryable
// flag takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var e *ETLError
	if errors.As(err, &e) {
		return e.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}

// IsFatal determines whether an error is fatal (neither retryable nor
// skippable). Used by skip logic. For an ETLError the flags take precedence.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var e *ETLError
	if errors.As(err, &e) {
		return !e.IsRetryable() && !e.IsSkippable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid argument") ||
		strings.Contains(errStr, "permission denied") ||
		strings.Contains(errStr, "data corruption")
}

// IsErrorOfType checks whether an error matches a type name. The name can be
// a registered sentinel name, a Go error type name (e.g. "*net.OpError"), or
// a substring of an error message. Checks run in that order across the whole
// unwrap chain.
func IsErrorOfType(err error, errorTypeName string) bool {
	if err == nil {
		return false
	}

	registryMutex.RLock()
	targetError, ok := errorRegistry[errorTypeName]
	registryMutex.RUnlock()

	if ok {
		if errors.Is(err, targetError) {
			return true
		}
	}

	currentErr := err
	for currentErr != nil {
		if strings.Contains(currentErr.Error(), errorTypeName) {
			return true
		}

		errType := reflect.TypeOf(currentErr)
		if errType != nil {
			if errType.String() == errorTypeName || (errType.Kind() == reflect.Ptr && errType.Elem().String() == errorTypeName) {
				return true
			}
		}

		currentErr = errors.Unwrap(currentErr)
	}

	return false
}

func init() {
	// Common error names referenced by retry and skip policy configuration.
	RegisterErrorType("io.EOF", errors.New("io.EOF"))
	RegisterErrorType("net.OpError", errors.New("net.OpError"))
	RegisterErrorType("context.DeadlineExceeded", context.DeadlineExceeded)
	RegisterErrorType("context.Canceled", context.Canceled)
	RegisterErrorType("sql.ErrNoRows", sql.ErrNoRows)
}

// ExtractErrorMessage extracts the message string from an error. For an
// ETLError it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *ETLError
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
