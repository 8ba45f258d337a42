package entity

import "time"

// Acciones auditadas.
const (
	AuditActionUpload = "UPLOAD"
	AuditActionSign   = "SIGN"
	AuditActionRevoke = "REVOKE"
)

// Resultado de la operación auditada.
const (
	AuditStatusSuccess = "success"
	AuditStatusFailure = "failure"
)

// SignatureAuditEntry registro inmutable de una operación de certificado o firma.
// Se crea una vez por intento y nunca se actualiza ni se borra.
type SignatureAuditEntry struct {
	ID              string
	UserID          string
	Action          string
	InvoiceID       string // opcional
	Status          string
	ErrorCode       string // opcional
	ErrorMessage    string // opcional
	CertificateUsed string // serial del certificado, opcional
	IPAddress       string
	UserAgent       string
	CreatedAt       time.Time
}

// AuditFilter filtros para listar auditoría por usuario.
type AuditFilter struct {
	UserID string
	Action string
	Limit  int
	Offset int
}
