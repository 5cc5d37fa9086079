package apperror

// Code is a stable reason code surfaced to callers and logs.
type Code string

// General error codes
const (
	CodeInvalidInput       Code = "INVALID_INPUT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"

	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Engine reason codes
const (
	// Provider probing
	CodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	CodeMalformedResponse   Code = "MALFORMED_RESPONSE"

	// Selection and admission
	CodeNoEligibleProvider       Code = "NO_ELIGIBLE_PROVIDER"
	CodeProviderNotApproved      Code = "PROVIDER_NOT_APPROVED"
	CodeAmountOutOfBounds        Code = "AMOUNT_OUT_OF_BOUNDS"
	CodeConcurrencyLimitExceeded Code = "CONCURRENCY_LIMIT_EXCEEDED"
	CodeInvalidReceiver          Code = "INVALID_RECEIVER"
	CodeOpportunityNotFound      Code = "OPPORTUNITY_NOT_FOUND"

	// Execution
	CodeExecutionFailure Code = "EXECUTION_FAILURE"
	CodeUnknownOutcome   Code = "UNKNOWN_OUTCOME"
	CodeBundleRejected   Code = "BUNDLE_REJECTED"

	// Startup
	CodeStartupConfiguration Code = "STARTUP_CONFIGURATION_ERROR"

	// Circuit breaker
	CodeCircuitOpen Code = "CIRCUIT_OPEN"

	// Persistence / feed sinks
	CodeJournalWriteFailed Code = "JOURNAL_WRITE_FAILED"
	CodeFeedPublishFailed  Code = "FEED_PUBLISH_FAILED"
)
