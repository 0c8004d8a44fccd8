package coordinator

// ErrKind is the fixed error enum carried in a result value; each kind maps
// to one HTTP status and a short stable key.
type ErrKind string

const (
	ErrInvalidParameter ErrKind = "InvalidParameter"
	ErrOverCapacity     ErrKind = "OverCapacity"
	ErrCancelled        ErrKind = "Cancelled"
	ErrInternal         ErrKind = "Internal"
)

// Error is what Compute returns for anything that invalidates the entire
// response, as opposed to a single point's metrics.
type Error struct {
	Kind              ErrKind
	Message           string
	RetryAfterSeconds int
	CircuitState      string
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }
