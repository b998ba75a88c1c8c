package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. It must be deferred
// directly; the panic is not re-raised.
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "db stats")
//	    ...
//	}()
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
	}
}

// MustRecover converts a recovered value into an error, or nil when r is nil
//
//	defer func() { err = observability.MustRecover(recover()) }()
func MustRecover(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
