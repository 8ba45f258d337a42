package repository

import (
	"context"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
)

// SignatureAuditRepository almacenamiento append-only de auditoría. No expone Update ni Delete.
type SignatureAuditRepository interface {
	Insert(ctx context.Context, entry *entity.SignatureAuditEntry) error
	// ListByUser devuelve la página pedida (más recientes primero) y el total sin paginar.
	ListByUser(ctx context.Context, filter entity.AuditFilter) ([]*entity.SignatureAuditEntry, int, error)
	ListSignByInvoice(ctx context.Context, invoiceID string) ([]*entity.SignatureAuditEntry, error)
	ListFailuresSince(ctx context.Context, userID string, since time.Time, limit int) ([]*entity.SignatureAuditEntry, error)
}
