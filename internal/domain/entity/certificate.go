package entity

import (
	"math"
	"time"
)

// Estados de un CertificateRecord.
const (
	CertificateStatusPending  = "pending"
	CertificateStatusVerified = "verified"
	CertificateStatusExpired  = "expired"
	CertificateStatusRevoked  = "revoked"
)

// CertificateMetadata datos extraídos del X.509 al validar el contenedor PKCS#12.
type CertificateMetadata struct {
	Subject      string
	Issuer       string
	SerialNumber string // hex
	ValidFrom    time.Time
	ValidUntil   time.Time
	KeyAlgorithm string // ej. RSA-2048
}

// CertificateRecord certificado de firma de un usuario (0 o 1 activo por usuario).
// CertificateBlob es nil si y solo si Status == revoked.
type CertificateRecord struct {
	ID              string
	UserID          string
	Filename        string
	CertificateBlob []byte // version || nonce || tag || ciphertext del PKCS#12 original
	KeyVersion      int
	PinHash         string // bcrypt, nunca el PIN plano
	CertificateMetadata
	Status     string
	UploadedAt time.Time
	LastUsedAt *time.Time
	UpdatedAt  time.Time
}

// IsRevoked indica si el registro ya no puede usarse para firmar.
func (r *CertificateRecord) IsRevoked() bool {
	return r.Status == CertificateStatusRevoked || len(r.CertificateBlob) == 0
}

// InitialStatus estado con el que se persiste un certificado recién subido.
func InitialStatus(m CertificateMetadata, now time.Time) string {
	switch {
	case !now.Before(m.ValidUntil):
		return CertificateStatusExpired
	case now.Before(m.ValidFrom):
		return CertificateStatusPending
	default:
		return CertificateStatusVerified
	}
}

// EffectiveStatus deriva el estado a la fecha indicada sin mutar el registro:
// la expiración depende del tiempo, la revocación es definitiva.
func (r *CertificateRecord) EffectiveStatus(now time.Time) string {
	if r.IsRevoked() {
		return CertificateStatusRevoked
	}
	if !now.Before(r.ValidUntil) {
		return CertificateStatusExpired
	}
	if r.Status == CertificateStatusPending && !now.Before(r.ValidFrom) {
		return CertificateStatusVerified
	}
	return r.Status
}

// ExpiryStatus resumen de vencimiento (getCertificateExpiryStatus).
type ExpiryStatus struct {
	HasCertificate bool
	DaysRemaining  int
	IsExpired      bool
	ExpiryDate     time.Time
}

// ComputeExpiry daysRemaining = floor((validUntil - now) / 1 día); vencido si daysRemaining <= 0.
func (r *CertificateRecord) ComputeExpiry(now time.Time) ExpiryStatus {
	days := int(math.Floor(r.ValidUntil.Sub(now).Hours() / 24))
	return ExpiryStatus{
		HasCertificate: !r.IsRevoked(),
		DaysRemaining:  days,
		IsExpired:      days <= 0,
		ExpiryDate:     r.ValidUntil,
	}
}
