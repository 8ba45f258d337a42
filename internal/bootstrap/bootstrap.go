// Package bootstrap arma las dependencias compartidas por la API y la CLI de operación.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/teif-firma/internal/application/signature"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
	"github.com/jhoicas/teif-firma/internal/infrastructure/mongodb"
	"github.com/jhoicas/teif-firma/internal/infrastructure/postgres"
	"github.com/jhoicas/teif-firma/internal/infrastructure/teif/signer"
	"github.com/jhoicas/teif-firma/internal/infrastructure/vault"
	"github.com/jhoicas/teif-firma/pkg/config"
	"github.com/jhoicas/teif-firma/pkg/logger"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

// Services casos de uso listos para usar y los recursos que hay que cerrar.
type Services struct {
	Pool         *pgxpool.Pool
	Audit        *signature.AuditUseCase
	Certificates *signature.CertificateUseCase
	Signing      *signature.SigningUseCase
	mongo        *mongodb.AuditStore
}

// NewVault construye el vault con las llaves maestras y el costo bcrypt configurados.
func NewVault(cfg config.SignatureConfig) (*vault.Vault, error) {
	keys, err := cfg.MasterKeys()
	if err != nil {
		return nil, err
	}
	ring, err := vault.NewKeyring(keys, cfg.ActiveVersion(keys))
	for _, k := range keys {
		vault.Wipe(k)
	}
	if err != nil {
		return nil, err
	}
	return vault.New(ring, vault.NewPinHasher(cfg.PinCost)), nil
}

// Build abre PostgreSQL (y MongoDB si la auditoría va allí) y arma los casos de uso.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Services, error) {
	v, err := NewVault(cfg.Signature)
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	log.Info().
		Ints("key_versions", v.KeyVersions()).
		Int("active_key_version", v.ActiveKeyVersion()).
		Msg("llaves de cifrado cargadas")

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	s := &Services{Pool: pool}

	var auditRepo repository.SignatureAuditRepository
	switch cfg.Audit.Backend {
	case config.AuditBackendMongo:
		store, err := mongodb.NewAuditStore(ctx, mongodb.Config{URI: cfg.Audit.MongoURI, Database: cfg.Audit.MongoDatabase})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("conexión a MongoDB: %w", err)
		}
		s.mongo = store
		auditRepo = store
	default:
		auditRepo = postgres.NewSignatureAuditRepository(pool)
	}

	s.Audit = signature.NewAuditUseCase(auditRepo, log.Component("audit"))
	s.Certificates = signature.NewCertificateUseCase(
		postgres.NewCertificateRepository(pool),
		postgres.NewTxRunner(pool),
		v,
		s.Audit,
		signature.CertificateConfig{PinMinLength: cfg.Signature.PinMinLength, PinMaxLength: cfg.Signature.PinMaxLength},
		log.Component("certificates"),
	)
	s.Signing = signature.NewSigningUseCase(
		s.Certificates,
		signer.NewDigitalSignatureService(teif.RootElement),
		s.Audit,
		postgres.NewInvoiceRepository(pool),
		cfg.Signature.Workers,
		log.Component("signing"),
	)
	return s, nil
}

// Close libera las conexiones abiertas por Build.
func (s *Services) Close(ctx context.Context) {
	if s.mongo != nil {
		_ = s.mongo.Close(ctx)
	}
	s.Pool.Close()
}
