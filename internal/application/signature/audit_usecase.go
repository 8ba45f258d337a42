package signature

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/teif-firma/internal/application/dto"
	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 100
)

// AuditUseCase registro append-only de UPLOAD, SIGN y REVOKE.
type AuditUseCase struct {
	repo repository.SignatureAuditRepository
	now  func() time.Time
	log  zerolog.Logger
}

// NewAuditUseCase construye el caso de uso de auditoría.
func NewAuditUseCase(repo repository.SignatureAuditRepository, log zerolog.Logger) *AuditUseCase {
	return &AuditUseCase{repo: repo, now: time.Now, log: log}
}

// Record asigna ID y fecha y persiste la entrada. Un fallo se registra en warn y se devuelve
// como domain.ErrAuditWrite; nunca invalida la operación auditada.
func (uc *AuditUseCase) Record(ctx context.Context, entry *entity.SignatureAuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = uc.now().UTC()
	}
	if err := uc.repo.Insert(ctx, entry); err != nil {
		uc.log.Warn().Err(err).
			Str("user_id", entry.UserID).
			Str("action", entry.Action).
			Str("invoice_id", entry.InvoiceID).
			Str("code", domain.ErrAuditWrite.Code).
			Msg("auditoría de firma no persistida")
		return domain.ErrAuditWrite.Wrap(err)
	}
	return nil
}

// RecordRejected audita un intento rechazado antes de llegar al núcleo (p. ej. validación HTTP).
func (uc *AuditUseCase) RecordRejected(ctx context.Context, action, userID, invoiceID string, meta RequestMeta, cause error) error {
	return uc.recordOutcome(ctx, action, userID, invoiceID, "", meta, cause)
}

// recordOutcome arma la entrada a partir del resultado de la operación.
func (uc *AuditUseCase) recordOutcome(ctx context.Context, action, userID, invoiceID, serial string, meta RequestMeta, opErr error) error {
	entry := &entity.SignatureAuditEntry{
		UserID:          userID,
		Action:          action,
		InvoiceID:       invoiceID,
		Status:          entity.AuditStatusSuccess,
		CertificateUsed: serial,
		IPAddress:       meta.IPAddress,
		UserAgent:       meta.UserAgent,
	}
	if opErr != nil {
		entry.Status = entity.AuditStatusFailure
		entry.ErrorCode, entry.ErrorMessage = auditError(opErr)
	}
	return uc.Record(ctx, entry)
}

// auditError código y mensaje público del error; las causas internas no se guardan.
func auditError(err error) (code, message string) {
	if se := asSignatureError(err); se != nil {
		return se.Code, se.Message
	}
	if errors.Is(err, domain.ErrNotFound) {
		return "NOT_FOUND", domain.ErrNotFound.Error()
	}
	return domain.CodeOf(err), "error interno"
}

func asSignatureError(err error) *domain.SignatureError {
	var se *domain.SignatureError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// ListByUser página de auditoría del usuario, más recientes primero.
func (uc *AuditUseCase) ListByUser(ctx context.Context, userID, action string, page dto.PageRequest) (*dto.AuditListResponse, error) {
	page.DefaultPage()
	if page.Limit > maxAuditLimit {
		page.Limit = maxAuditLimit
	}
	switch action {
	case "", entity.AuditActionUpload, entity.AuditActionSign, entity.AuditActionRevoke:
	default:
		return nil, domain.ErrInvalidInput
	}
	items, total, err := uc.repo.ListByUser(ctx, entity.AuditFilter{
		UserID: userID,
		Action: action,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		return nil, err
	}
	return &dto.AuditListResponse{
		Items: toAuditResponses(items),
		Page:  dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}, nil
}

// InvoiceHistory intentos de firma (SIGN) de una factura hechos por el usuario.
func (uc *AuditUseCase) InvoiceHistory(ctx context.Context, userID, invoiceID string) ([]dto.AuditEntryResponse, error) {
	items, err := uc.repo.ListSignByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	own := items[:0]
	for _, e := range items {
		if e.UserID == userID {
			own = append(own, e)
		}
	}
	return toAuditResponses(own), nil
}

// RecentFailures fallos del usuario dentro de la ventana indicada.
func (uc *AuditUseCase) RecentFailures(ctx context.Context, userID string, window time.Duration, limit int) ([]dto.AuditEntryResponse, error) {
	if limit <= 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	items, err := uc.repo.ListFailuresSince(ctx, userID, uc.now().Add(-window), limit)
	if err != nil {
		return nil, err
	}
	return toAuditResponses(items), nil
}

func toAuditResponses(items []*entity.SignatureAuditEntry) []dto.AuditEntryResponse {
	out := make([]dto.AuditEntryResponse, 0, len(items))
	for _, e := range items {
		out = append(out, dto.AuditEntryResponse{
			ID:              e.ID,
			Action:          e.Action,
			InvoiceID:       e.InvoiceID,
			Status:          e.Status,
			ErrorCode:       e.ErrorCode,
			ErrorMessage:    e.ErrorMessage,
			CertificateUsed: e.CertificateUsed,
			IPAddress:       e.IPAddress,
			UserAgent:       e.UserAgent,
			CreatedAt:       e.CreatedAt,
		})
	}
	return out
}
