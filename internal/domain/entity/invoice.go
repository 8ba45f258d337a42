package entity

import "time"

// Estados del documento TEIF relevantes para la firma.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusFinalized = "finalized"
)

// InvoiceDocument vista mínima de una factura: solo lo que la capa HTTP necesita
// para cargar el XML a firmar y persistir el resultado.
type InvoiceDocument struct {
	ID             string
	UserID         string
	DocumentNumber string
	XMLContent     string // TEIF 1.8.8; tras la firma contiene ds:Signature
	Status         string
	SignatureID    string
	SignedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
