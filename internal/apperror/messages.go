package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:       "Invalid input provided",
	CodeNotFound:           "Resource not found",
	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeProviderUnavailable: "Lending provider unavailable",
	CodeMalformedResponse:   "Malformed provider response",

	CodeNoEligibleProvider:       "No eligible provider for token and amount",
	CodeProviderNotApproved:      "Provider is not approved",
	CodeAmountOutOfBounds:        "Requested amount is out of bounds",
	CodeConcurrencyLimitExceeded: "Concurrent execution limit reached",
	CodeInvalidReceiver:          "Invalid receiving account",
	CodeOpportunityNotFound:      "Opportunity not found in current snapshot",

	CodeExecutionFailure: "Flash loan bundle did not complete",
	CodeUnknownOutcome:   "Execution outcome unknown after timeout",
	CodeBundleRejected:   "Provider rejected the bundle",

	CodeStartupConfiguration: "Invalid startup configuration",

	CodeCircuitOpen: "Circuit breaker is open",

	CodeJournalWriteFailed: "Failed to write execution journal",
	CodeFeedPublishFailed:  "Failed to publish feed event",
}
