package program

// CompilerBuilderOption is a functional option used to configure a Compiler during construction.
type CompilerBuilderOption func(*compiler)

// WithProgramBinder sets the binder given to every program the compiler creates.
//
// Parameters:
//   - b: the binder Use forwards to
//
// Returns:
//   - CompilerBuilderOption: a function that sets the binder of the compiler
func WithProgramBinder(b Binder) CompilerBuilderOption {
	return func(c *compiler) {
		c.binder = b
	}
}

// WithCompileObserver registers a callback invoked after every compile attempt with the
// resulting error, nil on success.
//
// Parameters:
//   - fn: the callback
//
// Returns:
//   - CompilerBuilderOption: a function that sets the observer of the compiler
func WithCompileObserver(fn func(p Program, err error)) CompilerBuilderOption {
	return func(c *compiler) {
		c.observer = fn
	}
}
