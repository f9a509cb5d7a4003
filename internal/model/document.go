package model

const (
	DocumentStatusPending    = "pending"
	DocumentStatusExtracting = "extracting"
	DocumentStatusEmbedding  = "embedding"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

type Document struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	Ctime    int64  `json:"ctime"`
}

// Page is one page of extracted text. Pages are 0-based and ordered.
type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ExtractedDocument is what the extraction worker writes to the staging store
// and the embedding worker reads back.
type ExtractedDocument struct {
	DocID    string `json:"doc_id"`
	TenantID string `json:"tenant_id"`
	DocName  string `json:"doc_name"`
	Pages    []Page `json:"pages"`
}
