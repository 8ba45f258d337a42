package dto

import "time"

// UploadCertificateResponse respuesta de POST /api/signature/upload.
type UploadCertificateResponse struct {
	Status       string    `json:"status"`
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	SerialNumber string    `json:"serialNumber"`
	KeyAlgorithm string    `json:"keyAlgorithm"`
	ValidFrom    time.Time `json:"validFrom"`
	ValidUntil   time.Time `json:"validUntil"`
}

// SignInvoiceRequest cuerpo de POST /api/signature/invoices/:invoiceId/sign.
type SignInvoiceRequest struct {
	PIN string `json:"pin"`
}

// SignInvoiceResponse factura firmada.
type SignInvoiceResponse struct {
	SignedXML         string    `json:"signedXml"`
	SignatureID       string    `json:"signatureId"`
	Timestamp         time.Time `json:"timestamp"`
	DigestValue       string    `json:"digestValue"`
	CertificateSerial string    `json:"certificateSerial"`
	Filename          string    `json:"filename"`
}

// CertificateStatusResponse estado del certificado (getCertificateStatus).
type CertificateStatusResponse struct {
	HasCertificate bool       `json:"hasCertificate"`
	Status         string     `json:"status"`
	Subject        string     `json:"certificateSubject"`
	Issuer         string     `json:"certificateIssuer"`
	SerialNumber   string     `json:"certificateSerialNumber"`
	KeyAlgorithm   string     `json:"keyAlgorithm"`
	ValidFrom      time.Time  `json:"certificateValidFrom"`
	ValidUntil     time.Time  `json:"certificateValidUntil"`
	DaysRemaining  int        `json:"daysRemaining"`
	IsExpired      bool       `json:"isExpired"`
	UploadedAt     time.Time  `json:"uploadedAt"`
	LastUsedAt     *time.Time `json:"lastUsedAt"`
}

// ExpiryStatusResponse resumen de vencimiento.
type ExpiryStatusResponse struct {
	HasCertificate bool      `json:"hasCertificate"`
	DaysRemaining  int       `json:"daysRemaining"`
	IsExpired      bool      `json:"isExpired"`
	ExpiryDate     time.Time `json:"expiryDate"`
}

// AuditEntryResponse una fila de auditoría.
type AuditEntryResponse struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	InvoiceID       string    `json:"invoiceId,omitempty"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"errorCode,omitempty"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	CertificateUsed string    `json:"certificateUsed,omitempty"`
	IPAddress       string    `json:"ipAddress,omitempty"`
	UserAgent       string    `json:"userAgent,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// AuditListResponse página de auditoría.
type AuditListResponse struct {
	Items []AuditEntryResponse `json:"items"`
	Page  PageResponse         `json:"page"`
}
