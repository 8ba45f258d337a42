package http_test

import (
	"context"
	"sync"
	"time"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

type memCertRepo struct {
	mu      sync.Mutex
	records map[string]entity.CertificateRecord
}

func (r *memCertRepo) GetByUserID(_ context.Context, userID string) (*entity.CertificateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (r *memCertRepo) Upsert(_ context.Context, rec *entity.CertificateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.UserID] = *rec
	return nil
}

func (r *memCertRepo) TouchLastUsed(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[userID]; ok {
		rec.LastUsedAt = &at
		r.records[userID] = rec
	}
	return nil
}

func (r *memCertRepo) Revoke(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[userID]
	rec.Status = entity.CertificateStatusRevoked
	rec.CertificateBlob = nil
	rec.UpdatedAt = at
	r.records[userID] = rec
	return nil
}

func (r *memCertRepo) ListSealedWithKeyVersionOtherThan(context.Context, int, int) ([]*entity.CertificateRecord, error) {
	return nil, nil
}

func (r *memCertRepo) UpdateBlob(context.Context, string, []byte, int, time.Time) error {
	return nil
}

func (r *memCertRepo) RunForUser(_ context.Context, _ string, fn func(repository.CertificateRepository) error) error {
	return fn(r)
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*entity.SignatureAuditEntry
}

func (r *memAuditRepo) Insert(_ context.Context, e *entity.SignatureAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memAuditRepo) ListByUser(_ context.Context, f entity.AuditFilter) ([]*entity.SignatureAuditEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SignatureAuditEntry
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.UserID == f.UserID && (f.Action == "" || e.Action == f.Action) {
			out = append(out, e)
		}
	}
	total := len(out)
	if f.Offset >= total {
		return nil, total, nil
	}
	return out[f.Offset:min(f.Offset+f.Limit, total)], total, nil
}

func (r *memAuditRepo) ListSignByInvoice(_ context.Context, invoiceID string) ([]*entity.SignatureAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SignatureAuditEntry
	for _, e := range r.entries {
		if e.InvoiceID == invoiceID && e.Action == entity.AuditActionSign {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) ListFailuresSince(context.Context, string, time.Time, int) ([]*entity.SignatureAuditEntry, error) {
	return nil, nil
}

func (r *memAuditRepo) last() *entity.SignatureAuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]entity.InvoiceDocument
}

func (r *memInvoiceRepo) GetByIDAndUser(_ context.Context, id, userID string) (*entity.InvoiceDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, nil
	}
	return &inv, nil
}

func (r *memInvoiceRepo) MarkFinalized(_ context.Context, id, signedXML, signatureID string, signedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := r.invoices[id]
	inv.XMLContent = signedXML
	inv.SignatureID = signatureID
	inv.SignedAt = &signedAt
	inv.Status = entity.InvoiceStatusFinalized
	r.invoices[id] = inv
	return nil
}
