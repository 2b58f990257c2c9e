package auth

// Reason identifies why a request was denied. All reasons surface as 401
// Unauthorized; the code exists for logs and response bodies.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonMissingOrInvalidToken Reason = "missing_or_invalid_token"
	ReasonMalformedToken        Reason = "malformed_token"
	ReasonInvalidOrExpiredToken Reason = "invalid_or_expired_token"
	ReasonKeyResolutionFailed   Reason = "key_resolution_failed"
	ReasonNoActiveSession       Reason = "no_active_session"
	ReasonInactiveUser          Reason = "inactive_user"
)

// Message returns the human-readable message for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonMissingOrInvalidToken:
		return "Missing or invalid token"
	case ReasonMalformedToken:
		return "Invalid token header"
	case ReasonInvalidOrExpiredToken, ReasonKeyResolutionFailed:
		return "Invalid or expired token"
	case ReasonNoActiveSession:
		return "No active login session found"
	case ReasonInactiveUser:
		return "User is not active"
	}
	return ""
}
