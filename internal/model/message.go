package model

const (
	MessageStatusPending   = "pending"
	MessageStatusCompleted = "completed"
	MessageStatusFailed    = "failed"
	MessageStatusAborted   = "aborted"
)

// Message is the audit record of one query. Status is monotonic: pending
// moves to exactly one of completed/failed/aborted and never reverts.
type Message struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	QueryID   string `json:"query_id"`
	QueryText string `json:"query_text"`
	Result    string `json:"result"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	Ctime     int64  `json:"ctime"`
}

// Token is one generated token of a message. Token numbers are 0-based and
// gapless; concatenating token_text in token_number order reproduces
// Message.Result for a completed message.
type Token struct {
	MessageID   string `json:"message_id"`
	TokenNumber int    `json:"token_number"`
	TokenText   string `json:"token_text"`
	Ctime       int64  `json:"ctime"`
}

// ChunkMessage records that a chunk served as evidence for a message.
type ChunkMessage struct {
	ChunkID   string `json:"chunk_id"`
	MessageID string `json:"message_id"`
}

func IsTerminalMessageStatus(status string) bool {
	switch status {
	case MessageStatusCompleted, MessageStatusFailed, MessageStatusAborted:
		return true
	}
	return false
}
