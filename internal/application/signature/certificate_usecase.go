package signature

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/teif-firma/internal/application/dto"
	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
	"github.com/jhoicas/teif-firma/internal/infrastructure/teif/signer"
	"github.com/jhoicas/teif-firma/internal/infrastructure/vault"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

// CertificateConfig límites del PIN de firma.
type CertificateConfig struct {
	PinMinLength int
	PinMaxLength int
}

func (c CertificateConfig) withDefaults() CertificateConfig {
	if c.PinMinLength <= 0 {
		c.PinMinLength = 4
	}
	if c.PinMaxLength < c.PinMinLength {
		c.PinMaxLength = 20
	}
	return c
}

// DecryptedCertificate vista descifrada prestada para una sola firma. El llamador debe invocar Destroy.
type DecryptedCertificate struct {
	Container   []byte
	Credentials teif.Credentials
	Metadata    entity.CertificateMetadata
}

// Destroy pone en cero el contenedor y la llave privada.
func (d *DecryptedCertificate) Destroy() {
	if d == nil {
		return
	}
	vault.Wipe(d.Container)
	d.Container = nil
	signer.DestroyKey(d.Credentials.PrivateKey)
	d.Credentials = teif.Credentials{}
}

// CertificateUseCase custodia del certificado de firma de cada usuario.
type CertificateUseCase struct {
	repo  repository.CertificateRepository
	tx    CertificateTxRunner
	vault Vault
	audit *AuditUseCase
	locks *userLocks
	cfg   CertificateConfig
	now   func() time.Time
	log   zerolog.Logger
}

// NewCertificateUseCase construye el caso de uso. repo se usa para lecturas fuera de la sección crítica.
func NewCertificateUseCase(
	repo repository.CertificateRepository,
	tx CertificateTxRunner,
	v Vault,
	audit *AuditUseCase,
	cfg CertificateConfig,
	log zerolog.Logger,
) *CertificateUseCase {
	return &CertificateUseCase{
		repo:  repo,
		tx:    tx,
		vault: v,
		audit: audit,
		locks: newUserLocks(),
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		log:   log,
	}
}

// WithClock reemplaza el reloj (tests y herramientas).
func (uc *CertificateUseCase) WithClock(now func() time.Time) *CertificateUseCase {
	uc.now = now
	return uc
}

func (uc *CertificateUseCase) checkPinFormat(pin string) error {
	n := utf8.RuneCountInString(pin)
	if n < uc.cfg.PinMinLength || n > uc.cfg.PinMaxLength {
		return domain.ErrInvalidPinFormat
	}
	return nil
}

// Validate abre el contenedor con el PIN y devuelve sus metadatos. No persiste nada.
func (uc *CertificateUseCase) Validate(container []byte, pin string) (*entity.CertificateMetadata, error) {
	if err := uc.checkPinFormat(pin); err != nil {
		return nil, err
	}
	creds, err := signer.ParseContainer(container, pin)
	if err != nil {
		return nil, err
	}
	defer signer.DestroyKey(creds.PrivateKey)
	md := signer.Metadata(creds)
	return &md, nil
}

// Upload valida, cifra y reemplaza el certificado del usuario. Cifrado y bcrypt se hacen
// antes de tomar el bloqueo; la sección crítica solo intercambia el registro.
func (uc *CertificateUseCase) Upload(ctx context.Context, userID, filename string, container []byte, pin string, meta RequestMeta) (rec *entity.CertificateRecord, err error) {
	var serial string
	defer func() {
		_ = uc.audit.recordOutcome(ctx, entity.AuditActionUpload, userID, "", serial, meta, err)
	}()

	md, err := uc.Validate(container, pin)
	if err != nil {
		uc.log.Info().Str("user_id", userID).Str("code", domain.CodeOf(err)).Msg("certificado rechazado")
		return nil, err
	}
	serial = md.SerialNumber

	blob, version, err := uc.vault.Seal(container)
	if err != nil {
		return nil, err
	}
	pinHash, err := uc.vault.HashPin(pin)
	if err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	rec = &entity.CertificateRecord{
		ID:                  uuid.New().String(),
		UserID:              userID,
		Filename:            filename,
		CertificateBlob:     blob,
		KeyVersion:          version,
		PinHash:             pinHash,
		CertificateMetadata: *md,
		Status:              entity.InitialStatus(*md, now),
		UploadedAt:          now,
		UpdatedAt:           now,
	}

	unlock := uc.locks.lock(userID)
	defer unlock()
	if err = uc.tx.RunForUser(ctx, userID, func(repo repository.CertificateRepository) error {
		return repo.Upsert(ctx, rec)
	}); err != nil {
		return nil, err
	}
	uc.log.Info().Str("user_id", userID).Str("status", rec.Status).Int("key_version", version).Msg("certificado de firma cargado")
	return rec, nil
}

// snapshot lee el registro dentro de la sección crítica del usuario.
func (uc *CertificateUseCase) snapshot(ctx context.Context, userID string) (*entity.CertificateRecord, error) {
	unlock := uc.locks.lock(userID)
	defer unlock()
	var rec *entity.CertificateRecord
	err := uc.tx.RunForUser(ctx, userID, func(repo repository.CertificateRepository) error {
		var err error
		rec, err = repo.GetByUserID(ctx, userID)
		return err
	})
	return rec, err
}

// Resolve verifica PIN y vigencia y descifra el contenedor. Ve el registro completo anterior o
// posterior a un upload/revoke concurrente, nunca uno intermedio.
func (uc *CertificateUseCase) Resolve(ctx context.Context, userID, pin string) (*DecryptedCertificate, error) {
	rec, err := uc.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.IsRevoked() {
		return nil, domain.ErrNoCertificate
	}
	if !uc.vault.VerifyPin(pin, rec.PinHash) {
		return nil, domain.ErrInvalidPin
	}
	now := uc.now()
	if !now.Before(rec.ValidUntil) {
		return nil, domain.ErrCertificateExpired
	}
	if now.Before(rec.ValidFrom) {
		return nil, domain.ErrCertificateNotYetValid
	}

	container, err := uc.vault.Open(rec.CertificateBlob)
	if err != nil {
		uc.log.Error().Str("user_id", userID).Int("key_version", rec.KeyVersion).Str("code", domain.CodeOf(err)).
			Msg("blob de certificado no supera la verificación de integridad")
		return nil, err
	}
	creds, err := signer.ParseContainer(container, pin)
	if err != nil {
		vault.Wipe(container)
		// El PIN coincidió con el hash: un contenedor que no abre indica datos inconsistentes.
		return nil, domain.ErrIntegrity.Wrap(err)
	}

	uc.touchLastUsed(ctx, rec, now.UTC())
	return &DecryptedCertificate{
		Container:   container,
		Credentials: creds,
		Metadata:    rec.CertificateMetadata,
	}, nil
}

// touchLastUsed marca el uso dentro de la sección crítica y solo si el registro resuelto sigue
// vigente: un upload o revoke que ganó la carrera no hereda last_used_at.
func (uc *CertificateUseCase) touchLastUsed(ctx context.Context, used *entity.CertificateRecord, at time.Time) {
	unlock := uc.locks.lock(used.UserID)
	defer unlock()
	err := uc.tx.RunForUser(ctx, used.UserID, func(repo repository.CertificateRepository) error {
		cur, err := repo.GetByUserID(ctx, used.UserID)
		if err != nil {
			return err
		}
		if cur == nil || cur.ID != used.ID || cur.IsRevoked() {
			return nil
		}
		return repo.TouchLastUsed(ctx, used.UserID, at)
	})
	if err != nil {
		uc.log.Warn().Err(err).Str("user_id", used.UserID).Msg("no se pudo actualizar last_used_at")
	}
}

// Revoke descarta el blob cifrado de forma irreversible.
func (uc *CertificateUseCase) Revoke(ctx context.Context, userID string, meta RequestMeta) (err error) {
	var serial string
	defer func() {
		_ = uc.audit.recordOutcome(ctx, entity.AuditActionRevoke, userID, "", serial, meta, err)
	}()

	unlock := uc.locks.lock(userID)
	defer unlock()
	err = uc.tx.RunForUser(ctx, userID, func(repo repository.CertificateRepository) error {
		rec, err := repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil || rec.IsRevoked() {
			return domain.ErrNoCertificate
		}
		serial = rec.SerialNumber
		return repo.Revoke(ctx, userID, uc.now().UTC())
	})
	if err == nil {
		uc.log.Info().Str("user_id", userID).Msg("certificado de firma revocado")
	}
	return err
}

// ExpiryStatus nil si el usuario nunca cargó certificado.
func (uc *CertificateUseCase) ExpiryStatus(ctx context.Context, userID string) (*dto.ExpiryStatusResponse, error) {
	rec, err := uc.repo.GetByUserID(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	st := rec.ComputeExpiry(uc.now())
	return &dto.ExpiryStatusResponse{
		HasCertificate: st.HasCertificate,
		DaysRemaining:  st.DaysRemaining,
		IsExpired:      st.IsExpired,
		ExpiryDate:     st.ExpiryDate,
	}, nil
}

// Status estado efectivo a la fecha; nil si no hay registro.
func (uc *CertificateUseCase) Status(ctx context.Context, userID string) (*dto.CertificateStatusResponse, error) {
	rec, err := uc.repo.GetByUserID(ctx, userID)
	if err != nil || rec == nil {
		return nil, err
	}
	now := uc.now()
	st := rec.ComputeExpiry(now)
	return &dto.CertificateStatusResponse{
		HasCertificate: true,
		Status:         rec.EffectiveStatus(now),
		Subject:        rec.Subject,
		Issuer:         rec.Issuer,
		SerialNumber:   rec.SerialNumber,
		KeyAlgorithm:   rec.KeyAlgorithm,
		ValidFrom:      rec.ValidFrom,
		ValidUntil:     rec.ValidUntil,
		DaysRemaining:  st.DaysRemaining,
		IsExpired:      st.IsExpired,
		UploadedAt:     rec.UploadedAt,
		LastUsedAt:     rec.LastUsedAt,
	}, nil
}

// UploadResponse mapea el registro a la respuesta HTTP.
func UploadResponse(rec *entity.CertificateRecord) *dto.UploadCertificateResponse {
	return &dto.UploadCertificateResponse{
		Status:       rec.Status,
		Subject:      rec.Subject,
		Issuer:       rec.Issuer,
		SerialNumber: rec.SerialNumber,
		KeyAlgorithm: rec.KeyAlgorithm,
		ValidFrom:    rec.ValidFrom,
		ValidUntil:   rec.ValidUntil,
	}
}

// Rekey vuelve a sellar con la llave activa los blobs cifrados con otra versión. Devuelve cuántos migró.
func (uc *CertificateUseCase) Rekey(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	active := uc.vault.ActiveKeyVersion()
	migrated := 0
	for {
		recs, err := uc.repo.ListSealedWithKeyVersionOtherThan(ctx, active, batch)
		if err != nil {
			return migrated, err
		}
		if len(recs) == 0 {
			return migrated, nil
		}
		for _, r := range recs {
			if err := uc.rekeyOne(ctx, r.UserID, active); err != nil {
				return migrated, err
			}
			migrated++
		}
	}
}

func (uc *CertificateUseCase) rekeyOne(ctx context.Context, userID string, active int) error {
	unlock := uc.locks.lock(userID)
	defer unlock()
	return uc.tx.RunForUser(ctx, userID, func(repo repository.CertificateRepository) error {
		rec, err := repo.GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		// Revocado o ya migrado por otra réplica entre el listado y el bloqueo.
		if rec == nil || rec.IsRevoked() || rec.KeyVersion == active {
			return nil
		}
		plain, err := uc.vault.Open(rec.CertificateBlob)
		if err != nil {
			return err
		}
		defer vault.Wipe(plain)
		blob, version, err := uc.vault.Seal(plain)
		if err != nil {
			return err
		}
		return repo.UpdateBlob(ctx, userID, blob, version, uc.now().UTC())
	})
}
