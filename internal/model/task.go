package model

// ExtractTask asks the extraction worker to process a staged raw document.
// Pointer is the staging-store key of the raw bytes.
type ExtractTask struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Pointer    string `json:"pointer"`
}

// EmbedTask asks the embedding worker to chunk and embed extracted pages.
// Pointer is the staging-store key of the extracted pages document.
type EmbedTask struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
	Pointer    string `json:"pointer"`
}
