package apperr

// Mensajes estables expuestos al cliente.
const (
	MessageServer                = "Something went wrong. Please try again later"
	MessageValidation            = "Validation failed"
	MessageAccountExists         = "An account with this email already exists"
	MessageWrongCredentials      = "Invalid email or password"
	MessageInvalidEmail          = "No account found with this email"
	MessageInvalidPassword       = "Incorrect password"
	MessageEmailNotVerified      = "Please verify your email before logging in"
	MessageInvalidOrExpiredToken = "Invalid or expired token"
	MessageInvalidIDFormat       = "Invalid id format"
	MessageUnauthorized          = "Not authorized"
	MessageInvalidToken          = "Invalid token. Please log in again"
	MessageTokenExpired          = "Your session has expired. Please log in again"
	MessageNotFound              = "Resource not found"
	MessageRateLimited           = "Too many requests. Please try again later"
	MessageDeliveryFailed        = "Could not send email. Please try again later"
	MessageWrongCurrentPassword  = "Current password is incorrect"
)
