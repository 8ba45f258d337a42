package signature

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
	"github.com/jhoicas/teif-firma/internal/infrastructure/teif/signer"
	"github.com/jhoicas/teif-firma/internal/infrastructure/vault"
	"github.com/jhoicas/teif-firma/internal/testfixtures"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

// ──────────────────────────────────────────────────────────────────────────────
// Repositorios en memoria
// ──────────────────────────────────────────────────────────────────────────────

type memCertRepo struct {
	mu      sync.Mutex
	records map[string]entity.CertificateRecord
}

func newMemCertRepo() *memCertRepo {
	return &memCertRepo{records: make(map[string]entity.CertificateRecord)}
}

func (r *memCertRepo) GetByUserID(_ context.Context, userID string) (*entity.CertificateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil, nil
	}
	rec.CertificateBlob = append([]byte(nil), rec.CertificateBlob...)
	return &rec, nil
}

func (r *memCertRepo) Upsert(_ context.Context, rec *entity.CertificateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.CertificateBlob = append([]byte(nil), rec.CertificateBlob...)
	r.records[rec.UserID] = cp
	return nil
}

func (r *memCertRepo) TouchLastUsed(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	if !ok {
		return nil
	}
	rec.LastUsedAt = &at
	r.records[userID] = rec
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

func (r *memCertRepo) ListSealedWithKeyVersionOtherThan(_ context.Context, version, limit int) ([]*entity.CertificateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.CertificateRecord
	for _, rec := range r.records {
		if len(rec.CertificateBlob) > 0 && rec.KeyVersion != version && len(out) < limit {
			rec := rec
			out = append(out, &rec)
		}
	}
	return out, nil
}

func (r *memCertRepo) UpdateBlob(_ context.Context, userID string, blob []byte, version int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.records[userID]
	rec.CertificateBlob = append([]byte(nil), blob...)
	rec.KeyVersion = version
	rec.UpdatedAt = at
	r.records[userID] = rec
	return nil
}

// RunForUser el repositorio en memoria ya es atómico por operación.
func (r *memCertRepo) RunForUser(_ context.Context, _ string, fn func(repository.CertificateRepository) error) error {
	return fn(r)
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*entity.SignatureAuditEntry
	fail    bool
}

func (r *memAuditRepo) Insert(_ context.Context, e *entity.SignatureAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("conexión rechazada")
	}
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *memAuditRepo) ListByUser(_ context.Context, f entity.AuditFilter) ([]*entity.SignatureAuditEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*entity.SignatureAuditEntry
	for _, e := range r.entries {
		if e.UserID == f.UserID && (f.Action == "" || e.Action == f.Action) {
			all = append(all, e)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return all[f.Offset:end], total, nil
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

func (r *memAuditRepo) ListFailuresSince(_ context.Context, userID string, since time.Time, limit int) ([]*entity.SignatureAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SignatureAuditEntry
	for _, e := range r.entries {
		if e.UserID == userID && e.Status == entity.AuditStatusFailure && !e.CreatedAt.Before(since) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAuditRepo) byAction(action string) []*entity.SignatureAuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.SignatureAuditEntry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]entity.InvoiceDocument
	getErr   error
	markErr  error
}

func (r *memInvoiceRepo) GetByIDAndUser(_ context.Context, id, userID string) (*entity.InvoiceDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	inv, ok := r.invoices[id]
	if !ok || inv.UserID != userID {
		return nil, nil
	}
	return &inv, nil
}

func (r *memInvoiceRepo) MarkFinalized(_ context.Context, id, signedXML, signatureID string, signedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return r.markErr
	}
	inv := r.invoices[id]
	inv.XMLContent = signedXML
	inv.SignatureID = signatureID
	inv.SignedAt = &signedAt
	inv.Status = entity.InvoiceStatusFinalized
	r.invoices[id] = inv
	return nil
}

// stagesSigner registra las etapas que recorre el caso de uso sobre el firmador real.
type stagesSigner struct {
	*signer.DigitalSignatureService
	calls    []string
	buildErr error
}

func (s *stagesSigner) CanonicalDocument(xml string) ([]byte, error) {
	s.calls = append(s.calls, "canonical")
	return s.DigitalSignatureService.CanonicalDocument(xml)
}

func (s *stagesSigner) DigestCanonical(canonical []byte) string {
	s.calls = append(s.calls, "digest")
	return s.DigitalSignatureService.DigestCanonical(canonical)
}

func (s *stagesSigner) BuildSignature(digestValue string, creds teif.Credentials, at time.Time) (*teif.SignatureBlock, error) {
	s.calls = append(s.calls, "build")
	if s.buildErr != nil {
		return nil, s.buildErr
	}
	return s.DigitalSignatureService.BuildSignature(digestValue, creds, at)
}

func (s *stagesSigner) Embed(xml string, block *teif.SignatureBlock) (string, error) {
	s.calls = append(s.calls, "embed")
	return s.DigitalSignatureService.Embed(xml, block)
}

// ──────────────────────────────────────────────────────────────────────────────
// Armado de casos de uso
// ──────────────────────────────────────────────────────────────────────────────

const (
	testUserID = "00000000-0000-0000-0000-000000000001"
	otherUser  = "00000000-0000-0000-0000-000000000002"
)

const testInvoice = `<?xml version="1.0" encoding="UTF-8"?>
<TEIF controlingAgency="TTN" version="1.8.8">
  <InvoiceHeader><MessageSenderIdentifier type="I-01">0736202XAM000</MessageSenderIdentifier></InvoiceHeader>
  <InvoiceBody><Bgm><DocumentIdentifier>INV-001</DocumentIdentifier></Bgm></InvoiceBody>
</TEIF>`

type fixture struct {
	certRepo  *memCertRepo
	auditRepo *memAuditRepo
	invoices  *memInvoiceRepo
	audit     *AuditUseCase
	certs     *CertificateUseCase
	signing   *SigningUseCase
	now       time.Time
}

func testKeyring(t *testing.T, active int, versions ...int) *vault.Keyring {
	t.Helper()
	secrets := make(map[int][]byte, len(versions))
	for _, v := range versions {
		s := make([]byte, 32)
		for i := range s {
			s[i] = byte(v*31 + i)
		}
		secrets[v] = s
	}
	ring, err := vault.NewKeyring(secrets, active)
	require.NoError(t, err)
	return ring
}

// fixtureCertValidity ventana de vigencia del certificado de prueba.
func fixtureCertValidity(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	creds, err := signer.ParseContainer(testfixtures.SignerP12, testfixtures.PIN)
	require.NoError(t, err)
	return creds.Certificate.NotBefore, creds.Certificate.NotAfter
}

func newFixture(t *testing.T, ring *vault.Keyring) *fixture {
	t.Helper()
	notBefore, _ := fixtureCertValidity(t)
	f := &fixture{
		certRepo:  newMemCertRepo(),
		auditRepo: &memAuditRepo{},
		invoices:  &memInvoiceRepo{invoices: map[string]entity.InvoiceDocument{}},
		now:       notBefore.Add(24 * time.Hour),
	}
	clock := func() time.Time { return f.now }
	log := zerolog.Nop()

	f.audit = NewAuditUseCase(f.auditRepo, log)
	f.audit.now = clock
	v := vault.New(ring, vault.NewPinHasher(bcrypt.MinCost))
	f.certs = NewCertificateUseCase(f.certRepo, f.certRepo, v, f.audit, CertificateConfig{PinMinLength: 4, PinMaxLength: 20}, log).
		WithClock(clock)
	f.signing = NewSigningUseCase(f.certs, signer.NewDigitalSignatureService(teif.RootElement), f.audit, f.invoices, 2, log).
		WithClock(clock)
	return f
}

func (f *fixture) upload(t *testing.T) *entity.CertificateRecord {
	t.Helper()
	rec, err := f.certs.Upload(context.Background(), testUserID, "firma.p12", testfixtures.SignerP12, testfixtures.PIN, RequestMeta{IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	return rec
}
