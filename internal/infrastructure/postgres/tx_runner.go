package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhoicas/teif-firma/internal/application/signature"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

var _ signature.CertificateTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunForUser abre una transacción, toma pg_advisory_xact_lock sobre el usuario y ejecuta fn con el
// repositorio de certificados atado a la tx. El lock se libera con Commit o Rollback, así las
// réplicas también serializan upload, revoke y resolve del mismo usuario.
func (r *TxRunner) RunForUser(ctx context.Context, userID string, fn func(certRepo repository.CertificateRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}

	if err := fn(NewCertificateRepository(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
