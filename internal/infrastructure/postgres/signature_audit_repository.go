package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

var _ repository.SignatureAuditRepository = (*SignatureAuditRepo)(nil)

// SignatureAuditRepo auditoría append-only en signature_audit. No hay UPDATE ni DELETE.
type SignatureAuditRepo struct {
	pool *pgxpool.Pool
}

// NewSignatureAuditRepository construye el adaptador. Usa el pool, nunca la tx del llamador:
// un rollback de la operación no debe borrar su auditoría.
func NewSignatureAuditRepository(pool *pgxpool.Pool) *SignatureAuditRepo {
	return &SignatureAuditRepo{pool: pool}
}

const auditColumns = `id, user_id, action, invoice_id, status, error_code, error_message,
		certificate_used, ip_address, user_agent, created_at`

// Insert agrega una entrada.
func (r *SignatureAuditRepo) Insert(ctx context.Context, e *entity.SignatureAuditEntry) error {
	query := `INSERT INTO signature_audit (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, query,
		e.ID, e.UserID, e.Action, nullIfEmpty(e.InvoiceID), e.Status,
		nullIfEmpty(e.ErrorCode), nullIfEmpty(e.ErrorMessage), nullIfEmpty(e.CertificateUsed),
		nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert signature audit: %w", err)
	}
	return nil
}

// ListByUser página más reciente primero y total sin paginar.
func (r *SignatureAuditRepo) ListByUser(ctx context.Context, f entity.AuditFilter) ([]*entity.SignatureAuditEntry, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM signature_audit WHERE user_id = $1 AND ($2 = '' OR action = $2)`,
		f.UserID, f.Action,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count signature audit: %w", err)
	}
	query := `SELECT ` + auditColumns + `
		FROM signature_audit
		WHERE user_id = $1 AND ($2 = '' OR action = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	list, err := r.list(ctx, query, f.UserID, f.Action, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListSignByInvoice intentos de firma de la factura en orden cronológico.
func (r *SignatureAuditRepo) ListSignByInvoice(ctx context.Context, invoiceID string) ([]*entity.SignatureAuditEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM signature_audit
		WHERE invoice_id = $1 AND action = 'SIGN'
		ORDER BY created_at`
	return r.list(ctx, query, invoiceID)
}

// ListFailuresSince fallos del usuario desde since, más recientes primero.
func (r *SignatureAuditRepo) ListFailuresSince(ctx context.Context, userID string, since time.Time, limit int) ([]*entity.SignatureAuditEntry, error) {
	query := `SELECT ` + auditColumns + `
		FROM signature_audit
		WHERE user_id = $1 AND status = 'failure' AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`
	return r.list(ctx, query, userID, since, limit)
}

func (r *SignatureAuditRepo) list(ctx context.Context, query string, args ...any) ([]*entity.SignatureAuditEntry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list signature audit: %w", err)
	}
	defer rows.Close()
	var list []*entity.SignatureAuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan signature audit: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanAuditEntry(row pgxScanner) (*entity.SignatureAuditEntry, error) {
	var e entity.SignatureAuditEntry
	var invoiceID, code, msg, cert, ip, ua *string
	if err := row.Scan(&e.ID, &e.UserID, &e.Action, &invoiceID, &e.Status, &code, &msg, &cert, &ip, &ua, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.InvoiceID = emptyIfNull(invoiceID)
	e.ErrorCode = emptyIfNull(code)
	e.ErrorMessage = emptyIfNull(msg)
	e.CertificateUsed = emptyIfNull(cert)
	e.IPAddress = emptyIfNull(ip)
	e.UserAgent = emptyIfNull(ua)
	return &e, nil
}
