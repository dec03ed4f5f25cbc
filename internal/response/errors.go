package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Tickets ───────────────────────────────────────────────────────
	ErrTicketRequired ErrCode = "TICKET_REQUIRED"
	ErrTicketInvalid  ErrCode = "TICKET_INVALID"
	ErrRoomActive     ErrCode = "ROOM_ALREADY_ACTIVE"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrReviewKeyInvalid ErrCode = "REVIEW_KEY_INVALID"
	ErrReviewDisabled   ErrCode = "REVIEW_DISABLED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Interview-specific ────────────────────────────────────────────
	ErrNotEnoughQuestions ErrCode = "NOT_ENOUGH_QUESTIONS"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrUnavailable ErrCode = "SERVICE_UNAVAILABLE"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Tickets ───────────────────────────────────────────────────────
	case ErrTicketRequired:
		return "A room ticket is required."
	case ErrTicketInvalid:
		return "The room ticket is invalid or has expired."
	case ErrRoomActive:
		return "This ticket is already in use by another open interview room."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrReviewKeyInvalid:
		return "A valid review key is required."
	case ErrReviewDisabled:
		return "Reports are not enabled on this server."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Interview-specific ────────────────────────────────────────────
	case ErrNotEnoughQuestions:
		return "Not enough questions are available for this topic and difficulty."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrUnavailable:
		return "A dependency is unavailable. Please try again later."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
