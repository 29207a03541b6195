package vm

// Status is the outcome of a protected entry point. Exactly one status
// holds after every protected call or resume.
type Status uint8

const (
	// StatusOK means the call completed normally.
	StatusOK Status = iota
	// StatusYield means a thread suspended itself via Yield.
	StatusYield
	// StatusRuntimeError means an error was raised while running.
	StatusRuntimeError
	// StatusSyntaxError means input could not be decoded as a value
	// image (the machine has no source language, so this only arises
	// from malformed snapshot bytes).
	StatusSyntaxError
	// StatusMemoryError means a stack or registry limit was exceeded.
	StatusMemoryError
	// StatusHandlerError means the error handler itself raised.
	StatusHandlerError
	// StatusFinalizerError means a finalizer raised during collection
	// or close.
	StatusFinalizerError
	// StatusFileError means an image file could not be opened or read.
	StatusFileError
)

var statusNames = [...]string{
	StatusOK:             "ok",
	StatusYield:          "yield",
	StatusRuntimeError:   "runtime error",
	StatusSyntaxError:    "syntax error",
	StatusMemoryError:    "memory allocation error",
	StatusHandlerError:   "error while running message handler",
	StatusFinalizerError: "error while running finalizer",
	StatusFileError:      "file error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown status"
}

// Failed reports whether the status denotes an error outcome.
func (s Status) Failed() bool {
	return s != StatusOK && s != StatusYield
}
