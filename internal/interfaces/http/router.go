package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/teif-firma/internal/application/signature"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	CertificateUC      *signature.CertificateUseCase
	SigningUC          *signature.SigningUseCase
	AuditUC            *signature.AuditUseCase
	JWTSecret          string
	Security           SecurityConfig
	MaxCertificateSize int64
	Log                zerolog.Logger
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Firma electrónica (protegido, cabeceras de seguridad antes de autenticar)
	sig := api.Group("/signature", SignatureSecurity(deps.Security), AuthMiddleware(deps.JWTSecret))
	h := NewSignatureHandler(deps.CertificateUC, deps.SigningUC, deps.AuditUC, deps.MaxCertificateSize, deps.Log)
	sig.Post("/upload", h.Upload)
	sig.Post("/invoices/:invoiceId/sign", h.SignInvoice)
	sig.Get("/invoices/:invoiceId/history", h.InvoiceHistory)
	sig.Get("/status", h.Status)
	sig.Get("/expiry", h.Expiry)
	sig.Get("/audit", h.Audit)
	sig.Delete("/", h.Revoke)
}
