package errors

// Taxonomy codes.
const (
	CodeAuthExpired       = "AUTH_EXPIRED"
	CodeStructuredFailure = "STRUCTURED_FAILURE"
	CodeTransportFailure  = "TRANSPORT_FAILURE"
	CodeUserDeclined      = "USER_DECLINED"
)

// Local validation codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInvalidProvider  = "INVALID_PROVIDER"
	CodeProviderDisabled = "PROVIDER_DISABLED"
	CodeInvalidAction    = "INVALID_ACTION"
	CodeFormIncomplete   = "FORM_INCOMPLETE"
)

// ErrInvalidProviderf rejects an unknown provider identifier.
func ErrInvalidProviderf(provider string) *AppError {
	return Validation(CodeInvalidProvider, "unknown provider: "+provider)
}

// ErrProviderDisabledf rejects a provider that is configured off.
func ErrProviderDisabledf(provider string) *AppError {
	return Validation(CodeProviderDisabled, "provider "+provider+" is disabled")
}

// ErrInvalidActionf rejects an unknown VM action.
func ErrInvalidActionf(action string) *AppError {
	return Validation(CodeInvalidAction, "unknown action: "+action)
}
