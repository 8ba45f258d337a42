package repository

import (
	"context"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
)

// CertificateRepository define el puerto de persistencia para CertificateRecord (uno por usuario).
type CertificateRepository interface {
	// GetByUserID devuelve nil, nil si el usuario no tiene registro.
	GetByUserID(ctx context.Context, userID string) (*entity.CertificateRecord, error)
	// Upsert crea o reemplaza el registro del usuario; el blob anterior se descarta.
	Upsert(ctx context.Context, record *entity.CertificateRecord) error
	TouchLastUsed(ctx context.Context, userID string, at time.Time) error
	// Revoke marca revoked y pone certificate_blob en NULL.
	Revoke(ctx context.Context, userID string, at time.Time) error
	// ListSealedWithKeyVersionOtherThan lista registros con blob sellado bajo otra versión de llave (rotación).
	ListSealedWithKeyVersionOtherThan(ctx context.Context, version, limit int) ([]*entity.CertificateRecord, error)
	UpdateBlob(ctx context.Context, userID string, blob []byte, version int, at time.Time) error
}
