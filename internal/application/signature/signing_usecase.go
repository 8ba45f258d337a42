package signature

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

// Stage etapa de la máquina de estados de una firma.
type Stage string

const (
	StageRequested           Stage = "requested"
	StageCertificateResolved Stage = "certificate_resolved"
	StageCanonicalized       Stage = "canonicalized"
	StageDigested            Stage = "digested"
	StageSigned              Stage = "signed"
	StageEmbedded            Stage = "embedded"
)

// StageError fallo de firma con la última etapa alcanzada. errors.Is/As llegan al error tipado.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("firma fallida tras %s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// SignRequest solicitud efímera; el PIN no se persiste ni se registra.
type SignRequest struct {
	UserID     string
	PIN        string
	InvoiceID  string
	InvoiceXML string
	Meta       RequestMeta
}

// SignResult documento firmado y datos para auditoría. AuditErr no nulo indica que la firma
// fue correcta pero su registro de auditoría no se pudo guardar.
type SignResult struct {
	SignedXML         string
	SignatureID       string
	SigningTime       time.Time
	DigestValue       string
	CertificateSerial string
	AuditErr          error
}

// SigningUseCase orquesta resolve → canonicalización/digest → firma → incrustación → auditoría.
type SigningUseCase struct {
	certs    *CertificateUseCase
	signer   teif.Signer
	audit    *AuditUseCase
	invoices repository.InvoiceRepository
	workers  *semaphore.Weighted
	now      func() time.Time
	log      zerolog.Logger
}

// NewSigningUseCase workers limita las firmas simultáneas (CPU); <= 0 usa GOMAXPROCS.
func NewSigningUseCase(
	certs *CertificateUseCase,
	s teif.Signer,
	audit *AuditUseCase,
	invoices repository.InvoiceRepository,
	workers int,
	log zerolog.Logger,
) *SigningUseCase {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &SigningUseCase{
		certs:    certs,
		signer:   s,
		audit:    audit,
		invoices: invoices,
		workers:  semaphore.NewWeighted(int64(workers)),
		now:      time.Now,
		log:      log,
	}
}

// WithClock reemplaza el reloj de SigningTime.
func (uc *SigningUseCase) WithClock(now func() time.Time) *SigningUseCase {
	uc.now = now
	return uc
}

// SignInvoice firma el XML recibido. Toda llamada deja exactamente una entrada SIGN en auditoría.
// El XML de entrada nunca se modifica: ante un fallo el llamador conserva su documento original.
func (uc *SigningUseCase) SignInvoice(ctx context.Context, req SignRequest) (*SignResult, error) {
	res, serial, err := uc.sign(ctx, req)

	auditErr := uc.audit.recordOutcome(ctx, entity.AuditActionSign, req.UserID, req.InvoiceID, serial, req.Meta, err)
	if err != nil {
		return nil, err
	}
	res.AuditErr = auditErr
	return res, nil
}

func (uc *SigningUseCase) sign(ctx context.Context, req SignRequest) (*SignResult, string, error) {
	stage := StageRequested
	fail := func(err error) (*SignResult, string, error) {
		uc.log.Warn().
			Str("user_id", req.UserID).
			Str("invoice_id", req.InvoiceID).
			Str("stage", string(stage)).
			Str("code", domain.CodeOf(err)).
			Msg("firma de factura fallida")
		return nil, "", &StageError{Stage: stage, Err: err}
	}

	if err := uc.workers.Acquire(ctx, 1); err != nil {
		return fail(err)
	}
	defer uc.workers.Release(1)

	cert, err := uc.certs.Resolve(ctx, req.UserID, req.PIN)
	if err != nil {
		return fail(err)
	}
	defer cert.Destroy()
	stage = StageCertificateResolved
	serial := cert.Metadata.SerialNumber

	canonical, err := uc.signer.CanonicalDocument(req.InvoiceXML)
	if err != nil {
		return fail(err)
	}
	stage = StageCanonicalized

	digest := uc.signer.DigestCanonical(canonical)
	stage = StageDigested

	block, err := uc.signer.BuildSignature(digest, cert.Credentials, uc.now())
	if err != nil {
		return fail(err)
	}
	stage = StageSigned

	signed, err := uc.signer.Embed(req.InvoiceXML, block)
	if err != nil {
		return fail(err)
	}
	stage = StageEmbedded

	uc.log.Info().
		Str("user_id", req.UserID).
		Str("invoice_id", req.InvoiceID).
		Str("stage", string(stage)).
		Str("certificate", serial).
		Msg("factura firmada")
	return &SignResult{
		SignedXML:         signed,
		SignatureID:       block.ID,
		SigningTime:       block.SigningTime,
		DigestValue:       block.DigestValue,
		CertificateSerial: serial,
	}, serial, nil
}

// SignStoredInvoice carga el XML de la factura del usuario, la firma y la marca finalized.
// Deja una sola entrada SIGN con el resultado completo, incluido el guardado de la factura.
func (uc *SigningUseCase) SignStoredInvoice(ctx context.Context, userID, pin, invoiceID string, meta RequestMeta) (*SignResult, *entity.InvoiceDocument, error) {
	res, inv, err := uc.signStored(ctx, userID, pin, invoiceID, meta)

	var serial string
	if res != nil {
		serial = res.CertificateSerial
	}
	auditErr := uc.audit.recordOutcome(ctx, entity.AuditActionSign, userID, invoiceID, serial, meta, err)
	if err != nil {
		return nil, nil, err
	}
	res.AuditErr = auditErr
	return res, inv, nil
}

func (uc *SigningUseCase) signStored(ctx context.Context, userID, pin, invoiceID string, meta RequestMeta) (*SignResult, *entity.InvoiceDocument, error) {
	inv, err := uc.invoices.GetByIDAndUser(ctx, invoiceID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("cargar factura: %w", err)
	}
	if inv == nil {
		return nil, nil, domain.ErrNotFound
	}
	if inv.Status == entity.InvoiceStatusFinalized {
		return nil, nil, domain.ErrInvoiceAlreadySigned
	}

	res, _, err := uc.sign(ctx, SignRequest{
		UserID:     userID,
		PIN:        pin,
		InvoiceID:  invoiceID,
		InvoiceXML: inv.XMLContent,
		Meta:       meta,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := uc.invoices.MarkFinalized(ctx, invoiceID, res.SignedXML, res.SignatureID, res.SigningTime); err != nil {
		uc.log.Error().Err(err).
			Str("user_id", userID).
			Str("invoice_id", invoiceID).
			Msg("factura firmada pero no guardada")
		return res, nil, fmt.Errorf("guardar factura firmada: %w", err)
	}
	return res, inv, nil
}
