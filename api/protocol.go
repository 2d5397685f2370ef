package api

// requestBodyLimit is the echo BodyLimit spelling of 64 KiB.
const requestBodyLimit = "64K"

const headerIdempotencyKey = "Idempotency-Key"

const (
	msgTodoNotFound       = "todo not found"
	msgInvalidBody        = "invalid body"
	msgBodyTooLarge       = "request body too large"
	msgIdempotencyPending = "request with this idempotency key is still in progress"
)
