package dynamo

// DynamoDB attribute names used in key and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID       = "user_id"
	fieldEmail        = "email"
	fieldLoginID      = "login_id"
	fieldPasswordHash = "password_hash"
	fieldUpdatedAt    = "updated_at"
	fieldSessionRef   = "session_ref"
	fieldAttempts     = "attempts"
	fieldTokenID      = "token_id"
	fieldPurgeAt      = "purge_at"

	indexEmail = "email-index"
)
