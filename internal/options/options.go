package options

// Option is a functional option that configures a value of type T.
// Options may fail, which lets constructors validate arguments eagerly
// while the option is applied instead of deferring checks to first use.
type Option[T any] func(T) error

// Apply applies options to target in order and stops at the first error.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if err := opt(target); err != nil {
			return err
		}
	}

	return nil
}

// New wraps a fallible configuration function as an Option.
func New[T any](fn func(T) error) Option[T] {
	return fn
}

// NoError wraps an infallible configuration function as an Option.
func NoError[T any](fn func(T)) Option[T] {
	return func(target T) error {
		fn(target)
		return nil
	}
}
