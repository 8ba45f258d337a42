package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SchemaVersion versión del esquema que crea Migrate.
const SchemaVersion = 1

// Migrate crea las tablas de firma si no existen y registra la versión del esquema.
// Es idempotente: se puede ejecutar en cada despliegue.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`, SchemaVersion,
	); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	// Una fila por usuario. certificate_blob es NULL si y solo si status = 'revoked'.
	`CREATE TABLE IF NOT EXISTS user_signatures (
		id               UUID PRIMARY KEY,
		user_id          UUID NOT NULL UNIQUE,
		filename         TEXT,
		certificate_blob BYTEA,
		key_version      SMALLINT NOT NULL DEFAULT 1,
		pin_hash         TEXT NOT NULL,
		subject          TEXT NOT NULL,
		issuer           TEXT NOT NULL,
		serial_number    TEXT NOT NULL,
		valid_from       TIMESTAMPTZ NOT NULL,
		valid_until      TIMESTAMPTZ NOT NULL,
		key_algorithm    TEXT NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('pending', 'verified', 'expired', 'revoked')),
		uploaded_at      TIMESTAMPTZ NOT NULL,
		last_used_at     TIMESTAMPTZ,
		updated_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT user_signatures_blob_revoked CHECK ((certificate_blob IS NULL) = (status = 'revoked'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_signatures_key_version
		ON user_signatures (key_version) WHERE certificate_blob IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS signature_audit (
		id               UUID PRIMARY KEY,
		user_id          UUID NOT NULL,
		action           TEXT NOT NULL CHECK (action IN ('UPLOAD', 'SIGN', 'REVOKE')),
		invoice_id       TEXT,
		status           TEXT NOT NULL CHECK (status IN ('success', 'failure')),
		error_code       TEXT,
		error_message    TEXT,
		certificate_used TEXT,
		ip_address       TEXT,
		user_agent       TEXT,
		created_at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_signature_audit_user_created ON signature_audit (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_signature_audit_invoice ON signature_audit (invoice_id) WHERE invoice_id IS NOT NULL`,

	// Append-only también a nivel de base de datos.
	`CREATE OR REPLACE FUNCTION signature_audit_immutable() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'signature_audit es append-only';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_signature_audit_immutable ON signature_audit`,
	`CREATE TRIGGER trg_signature_audit_immutable
		BEFORE UPDATE OR DELETE ON signature_audit
		FOR EACH ROW EXECUTE FUNCTION signature_audit_immutable()`,

	`CREATE TABLE IF NOT EXISTS invoices (
		id              TEXT PRIMARY KEY,
		user_id         UUID NOT NULL,
		document_number TEXT NOT NULL,
		xml_content     TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'finalized')),
		signature_id    TEXT,
		signed_at       TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_user ON invoices (user_id)`,
}
