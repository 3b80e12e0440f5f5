package log

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldTraceID      = "trace_id"
	FieldJob          = "job"
	FieldStep         = "step"
	FieldUserID       = "user_id"
	FieldExecutionID  = "execution_id"
	FieldDeadLetterID = "dead_letter_id"
	FieldClientIP     = "client_ip"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatusCode   = "status_code"
	FieldDuration     = "duration_ms"
	FieldSuccess      = "success"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldReadCount    = "read_count"
	FieldWriteCount   = "write_count"
	FieldSkipCount    = "skip_count"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentBatch      = "batch"
	ComponentScheduler  = "scheduler"
	ComponentReport     = "report"
	ComponentDeadLetter = "dead_letter"
	ComponentBackend    = "backend"
)

// Operations defines standard operation names
const (
	OpRead     = "read"
	OpProcess  = "process"
	OpWrite    = "write"
	OpSkip     = "skip"
	OpRetry    = "retry"
	OpRecover  = "recover"
	OpPublish  = "publish"
	OpTrigger  = "trigger"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithUserID adds the user the log line is about
func (f LogFields) WithUserID(userID int64) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithStepCounts adds the running counters of a step execution
func (f LogFields) WithStepCounts(read, write, skip int) LogFields {
	f[FieldReadCount] = read
	f[FieldWriteCount] = write
	f[FieldSkipCount] = skip
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, clientIP string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldClientIP] = clientIP
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = statusCode < 400
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
