// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack at the point of
// recovery.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Error converts a value returned by recover() into an error. It returns nil
// for a nil value so it can be used directly on the recover() result.
//
//	defer func() {
//		if err := recovery.Error(recover()); err != nil {
//			...
//		}
//	}()
func Error(r any) error {
	if r == nil {
		return nil
	}
	return &PanicError{Value: r, Stack: debug.Stack()}
}

// HandlePanic should be deferred at the top of main().
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		fatal(r)
	}
}

// HandlePanicFunc logs panic details, calls the provided cleanup function and
// exits with code 1. Use it in goroutines that own resources which must be
// released before the process dies.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		if cleanup != nil {
			cleanup()
		}
		fatal(r)
	}
}

func fatal(r any) {
	_, _ = fmt.Fprintf(os.Stderr, "FATAL: %v\n\nStack trace:\n%s\n", r, debug.Stack())
	os.Exit(1)
}
