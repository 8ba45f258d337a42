package repository

import (
	"context"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
)

// InvoiceRepository puerto de lectura/escritura del XML de factura para el flujo de firma.
type InvoiceRepository interface {
	// GetByIDAndUser devuelve nil, nil si la factura no existe o no pertenece al usuario.
	GetByIDAndUser(ctx context.Context, id, userID string) (*entity.InvoiceDocument, error)
	// MarkFinalized guarda el XML firmado y pasa la factura a finalized.
	MarkFinalized(ctx context.Context, id, signedXML, signatureID string, signedAt time.Time) error
}
