package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// CaseIDKey is the context key for the canonical case identifier an
	// operation concerns.
	CaseIDKey contextKey = "case_id"

	// SlideIDKey is the context key for the slide identifier an operation concerns.
	SlideIDKey contextKey = "slide_id"

	// OperationKey is the context key for the logical operation name
	// (e.g. "resolve_status", "attach_slide").
	OperationKey contextKey = "operation"

	// GenerationKey is the context key for the case-change generation a request
	// was issued under.
	GenerationKey contextKey = "generation"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
