package domain // export_service/domain

// DefaultExportQueue is the durable queue carrying ExportRequest messages.
const DefaultExportQueue = "csv-export"

// ExportRequest is published when an administrator asks for a catalog export.
// It is the JSON body of each queue message and is never modified once enqueued.
// The catalog itself is not carried: it is read when the message is processed.
type ExportRequest struct {
	UserEmail string `json:"userEmail" validate:"required,email"`
	UserID    int64  `json:"userId" validate:"gt=0"`
}
