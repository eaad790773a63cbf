package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldExpenseID   = "expense_id"
	FieldChallengeID = "challenge_id"
	FieldEnrollment  = "enrollment_id"
	FieldChallengeTy = "challenge_type"
	FieldGoal        = "goal"
	FieldStatus      = "status"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldCurrent     = "current_amount"
	FieldTarget      = "target_amount"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentLedger     = "ledger"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentTracker    = "tracker"
	ComponentReconciler = "reconciler"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpTrack    = "track"
	OpEnroll   = "enroll"
	OpNotify   = "notify"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
