package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

var _ repository.CertificateRepository = (*CertificateRepo)(nil)

// CertificateRepo implementación de CertificateRepository sobre user_signatures (usable con pool o tx).
type CertificateRepo struct {
	q Querier
}

// NewCertificateRepository construye el adaptador. Pasar pool o tx (Querier).
func NewCertificateRepository(q Querier) *CertificateRepo {
	return &CertificateRepo{q: q}
}

const certificateColumns = `id, user_id, filename, certificate_blob, key_version, pin_hash,
		subject, issuer, serial_number, valid_from, valid_until, key_algorithm,
		status, uploaded_at, last_used_at, updated_at`

// GetByUserID obtiene el registro del usuario; nil, nil si no existe.
func (r *CertificateRepo) GetByUserID(ctx context.Context, userID string) (*entity.CertificateRecord, error) {
	query := `SELECT ` + certificateColumns + ` FROM user_signatures WHERE user_id = $1`
	rec, err := scanCertificate(r.q.QueryRow(ctx, query, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get certificate by user: %w", err)
	}
	return rec, nil
}

// Upsert crea o reemplaza el registro del usuario (una fila por user_id).
func (r *CertificateRepo) Upsert(ctx context.Context, rec *entity.CertificateRecord) error {
	query := `
		INSERT INTO user_signatures (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			filename = EXCLUDED.filename,
			certificate_blob = EXCLUDED.certificate_blob,
			key_version = EXCLUDED.key_version,
			pin_hash = EXCLUDED.pin_hash,
			subject = EXCLUDED.subject,
			issuer = EXCLUDED.issuer,
			serial_number = EXCLUDED.serial_number,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			key_algorithm = EXCLUDED.key_algorithm,
			status = EXCLUDED.status,
			uploaded_at = EXCLUDED.uploaded_at,
			last_used_at = NULL,
			updated_at = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		rec.ID, rec.UserID, rec.Filename, rec.CertificateBlob, rec.KeyVersion, rec.PinHash,
		rec.Subject, rec.Issuer, rec.SerialNumber, rec.ValidFrom, rec.ValidUntil, rec.KeyAlgorithm,
		rec.Status, rec.UploadedAt, rec.LastUsedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert certificate: %w", err)
	}
	return nil
}

// TouchLastUsed actualiza last_used_at.
func (r *CertificateRepo) TouchLastUsed(ctx context.Context, userID string, at time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE user_signatures SET last_used_at = $2 WHERE user_id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("touch certificate: %w", err)
	}
	return nil
}

// Revoke marca revoked y descarta el blob (NULL). El hash del PIN también se borra.
func (r *CertificateRepo) Revoke(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE user_signatures
		SET status = 'revoked', certificate_blob = NULL, pin_hash = '', updated_at = $2
		WHERE user_id = $1`
	_, err := r.q.Exec(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	return nil
}

// ListSealedWithKeyVersionOtherThan registros con blob sellado bajo una versión distinta de la activa.
func (r *CertificateRepo) ListSealedWithKeyVersionOtherThan(ctx context.Context, version, limit int) ([]*entity.CertificateRecord, error) {
	query := `SELECT ` + certificateColumns + `
		FROM user_signatures
		WHERE certificate_blob IS NOT NULL AND key_version <> $1
		ORDER BY updated_at
		LIMIT $2`
	rows, err := r.q.Query(ctx, query, version, limit)
	if err != nil {
		return nil, fmt.Errorf("list certificates by key version: %w", err)
	}
	defer rows.Close()
	var list []*entity.CertificateRecord
	for rows.Next() {
		rec, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// UpdateBlob reemplaza el blob sellado tras una rotación de llave.
func (r *CertificateRepo) UpdateBlob(ctx context.Context, userID string, blob []byte, version int, at time.Time) error {
	query := `
		UPDATE user_signatures
		SET certificate_blob = $2, key_version = $3, updated_at = $4
		WHERE user_id = $1 AND certificate_blob IS NOT NULL`
	_, err := r.q.Exec(ctx, query, userID, blob, version, at)
	if err != nil {
		return fmt.Errorf("update certificate blob: %w", err)
	}
	return nil
}

func scanCertificate(row pgxScanner) (*entity.CertificateRecord, error) {
	var rec entity.CertificateRecord
	var filename *string
	err := row.Scan(
		&rec.ID, &rec.UserID, &filename, &rec.CertificateBlob, &rec.KeyVersion, &rec.PinHash,
		&rec.Subject, &rec.Issuer, &rec.SerialNumber, &rec.ValidFrom, &rec.ValidUntil, &rec.KeyAlgorithm,
		&rec.Status, &rec.UploadedAt, &rec.LastUsedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Filename = emptyIfNull(filename)
	return &rec, nil
}
