package arenadto

// Error codes carried by DomainError.
const (
	CodeNotFound             = "NotFound"
	CodeNotJoinable          = "NotJoinable"
	CodeAlreadyQueued        = "AlreadyQueued"
	CodeAlreadyInSession     = "AlreadyInSession"
	CodeUnauthenticated      = "Unauthenticated"
	CodeExternalLookupFailed = "ExternalLookupFailed"
	CodeBadRequest           = "BadRequest"
	CodeInternal             = "Internal"
)

type DomainError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "arena error"
}
