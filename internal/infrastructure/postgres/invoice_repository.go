package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

var _ repository.InvoiceRepository = (*InvoiceRepo)(nil)

// InvoiceRepo lectura del XML TEIF y cierre de la factura firmada (usable con pool o tx).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// GetByIDAndUser nil, nil si no existe o pertenece a otro usuario.
func (r *InvoiceRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*entity.InvoiceDocument, error) {
	query := `
		SELECT id, user_id, document_number, xml_content, status, signature_id, signed_at, created_at, updated_at
		FROM invoices WHERE id = $1 AND user_id = $2`
	var inv entity.InvoiceDocument
	var signatureID *string
	err := r.q.QueryRow(ctx, query, id, userID).Scan(
		&inv.ID, &inv.UserID, &inv.DocumentNumber, &inv.XMLContent, &inv.Status,
		&signatureID, &inv.SignedAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	inv.SignatureID = emptyIfNull(signatureID)
	return &inv, nil
}

// MarkFinalized guarda el XML firmado. Solo transiciona desde draft: una factura ya
// finalizada no se sobrescribe.
func (r *InvoiceRepo) MarkFinalized(ctx context.Context, id, signedXML, signatureID string, signedAt time.Time) error {
	query := `
		UPDATE invoices
		SET xml_content = $2, signature_id = $3, signed_at = $4, status = 'finalized', updated_at = $4
		WHERE id = $1 AND status = 'draft'`
	tag, err := r.q.Exec(ctx, query, id, signedXML, signatureID, signedAt)
	if err != nil {
		return fmt.Errorf("finalize invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvoiceAlreadySigned
	}
	return nil
}
