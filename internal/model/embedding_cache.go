package model

// EmbeddingCache stores one previously computed chunk embedding keyed by the
// hash of the chunk text, so redelivered or re-uploaded content skips the
// provider call.
type EmbeddingCache struct {
	ModelName   string    `json:"model_name"`
	ContentHash string    `json:"content_hash"`
	Embedding   []float32 `json:"embedding"`
	Ctime       int64     `json:"ctime"`
}
