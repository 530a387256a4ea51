package log

// Canonical field names for structured logging.
const (
	FieldRequestID      = "request_id"
	FieldCorrelationID  = "correlation_id"
	FieldComponent      = "component"
	FieldEvent          = "event"
	FieldUserID         = "user_id"
	FieldConversationID = "conversation_id"
	FieldIntent         = "intent"
	FieldStrategy       = "strategy"
	FieldElapsedMS      = "elapsed_ms"
)
