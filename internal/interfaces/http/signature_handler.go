package http

import (
	"errors"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/teif-firma/internal/application/dto"
	"github.com/jhoicas/teif-firma/internal/application/signature"
	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
)

// DefaultMaxCertificateSize límite del archivo PKCS#12 si no se configura otro.
const DefaultMaxCertificateSize = 10 * 1024 * 1024

var allowedCertificateExt = map[string]bool{".p12": true, ".pfx": true}

// SignatureHandler custodia del certificado y firma de facturas (protegido).
type SignatureHandler struct {
	certs   *signature.CertificateUseCase
	signing *signature.SigningUseCase
	audit   *signature.AuditUseCase
	maxSize int64
	log     zerolog.Logger
}

// NewSignatureHandler construye el handler. maxSize <= 0 usa DefaultMaxCertificateSize.
func NewSignatureHandler(
	certs *signature.CertificateUseCase,
	signing *signature.SigningUseCase,
	audit *signature.AuditUseCase,
	maxSize int64,
	log zerolog.Logger,
) *SignatureHandler {
	if maxSize <= 0 {
		maxSize = DefaultMaxCertificateSize
	}
	return &SignatureHandler{certs: certs, signing: signing, audit: audit, maxSize: maxSize, log: log}
}

func requestMeta(c *fiber.Ctx) signature.RequestMeta {
	return signature.RequestMeta{
		IPAddress: ClientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

// Upload carga el certificado PKCS#12 del usuario.
// @Summary      Cargar certificado de firma
// @Description  Recibe un contenedor .p12/.pfx y su PIN; lo valida, lo cifra y reemplaza el certificado anterior.
// @Tags         signature
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        certificate  formData  file    true  "Contenedor PKCS#12 (.p12 o .pfx)"
// @Param        pin          formData  string  true  "PIN del contenedor (4 a 20 caracteres)"
// @Success      201  {object}  dto.UploadCertificateResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/signature/upload [post]
func (h *SignatureHandler) Upload(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	meta := requestMeta(c)
	reject := func(err error) error {
		_ = h.audit.RecordRejected(c.Context(), entity.AuditActionUpload, userID, "", meta, err)
		return h.writeError(c, err)
	}

	file, err := c.FormFile("certificate")
	if err != nil {
		return reject(domain.ErrMissingCertificateFile)
	}
	if !allowedCertificateExt[strings.ToLower(filepath.Ext(file.Filename))] {
		return reject(domain.ErrInvalidFileType)
	}
	if file.Size > h.maxSize {
		return reject(domain.ErrCertificateTooLarge)
	}
	container, err := readFormFile(file, h.maxSize)
	if err != nil {
		return reject(err)
	}
	defer clear(container)

	rec, err := h.certs.Upload(c.Context(), userID, filepath.Base(file.Filename), container, c.FormValue("pin"), meta)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(signature.UploadResponse(rec))
}

func readFormFile(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, domain.ErrMissingCertificateFile.Wrap(err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, domain.ErrMissingCertificateFile.Wrap(err)
	}
	if int64(len(data)) > max {
		clear(data)
		return nil, domain.ErrCertificateTooLarge
	}
	return data, nil
}

// SignInvoice firma una factura del usuario y la marca como finalizada.
// @Summary      Firmar factura TEIF
// @Description  Firma con XAdES-BES el XML de la factura usando el certificado custodiado del usuario.
// @Tags         signature
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        invoiceId  path  string                  true  "ID de la factura"
// @Param        body       body  dto.SignInvoiceRequest  true  "PIN del certificado"
// @Success      200  {object}  dto.SignInvoiceResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      500  {object}  dto.ErrorResponse
// @Router       /api/signature/invoices/{invoiceId}/sign [post]
func (h *SignatureHandler) SignInvoice(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	invoiceID := c.Params("invoiceId")
	meta := requestMeta(c)

	var in dto.SignInvoiceRequest
	if err := c.BodyParser(&in); err != nil || in.PIN == "" {
		_ = h.audit.RecordRejected(c.Context(), entity.AuditActionSign, userID, invoiceID, meta, domain.ErrInvalidRequest)
		return h.writeError(c, domain.ErrInvalidRequest)
	}

	res, inv, err := h.signing.SignStoredInvoice(c.Context(), userID, in.PIN, invoiceID, meta)
	if err != nil {
		return h.writeError(c, err)
	}
	if res.AuditErr != nil {
		c.Set("X-Audit-Warning", domain.CodeOf(res.AuditErr))
	}
	return c.JSON(dto.SignInvoiceResponse{
		SignedXML:         res.SignedXML,
		SignatureID:       res.SignatureID,
		Timestamp:         res.SigningTime,
		DigestValue:       res.DigestValue,
		CertificateSerial: res.CertificateSerial,
		Filename:          signedFilename(inv),
	})
}

func signedFilename(inv *entity.InvoiceDocument) string {
	num := inv.DocumentNumber
	if num == "" {
		num = inv.ID
	}
	num = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' || r < 0x20 {
			return '_'
		}
		return r
	}, num)
	return "invoice_" + num + "_signed.xml"
}

// Status estado del certificado del usuario.
// @Summary      Estado del certificado
// @Tags         signature
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.CertificateStatusResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Router       /api/signature/status [get]
func (h *SignatureHandler) Status(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	st, err := h.certs.Status(c.Context(), userID)
	if err != nil {
		return h.writeError(c, err)
	}
	if st == nil {
		return c.JSON(dto.CertificateStatusResponse{HasCertificate: false})
	}
	return c.JSON(st)
}

// Expiry días restantes de vigencia.
// @Summary      Vencimiento del certificado
// @Tags         signature
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  dto.ExpiryStatusResponse
// @Router       /api/signature/expiry [get]
func (h *SignatureHandler) Expiry(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	st, err := h.certs.ExpiryStatus(c.Context(), userID)
	if err != nil {
		return h.writeError(c, err)
	}
	if st == nil {
		return c.JSON(dto.ExpiryStatusResponse{HasCertificate: false})
	}
	return c.JSON(st)
}

// Revoke descarta el certificado del usuario. Irreversible.
// @Summary      Revocar certificado
// @Tags         signature
// @Security     Bearer
// @Success      204
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/signature [delete]
func (h *SignatureHandler) Revoke(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	if err := h.certs.Revoke(c.Context(), userID, requestMeta(c)); err != nil {
		return h.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Audit historial de auditoría del usuario.
// @Summary      Auditoría de firma
// @Tags         signature
// @Security     Bearer
// @Produce      json
// @Param        limit   query  int     false  "Máximo 100"
// @Param        offset  query  int     false  "Desplazamiento"
// @Param        action  query  string  false  "UPLOAD | SIGN | REVOKE"
// @Success      200  {object}  dto.AuditListResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/signature/audit [get]
func (h *SignatureHandler) Audit(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "parámetros de paginación inválidos"})
	}
	out, err := h.audit.ListByUser(c.Context(), userID, strings.ToUpper(c.Query("action")), page)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(out)
}

// InvoiceHistory intentos de firma de una factura.
// @Summary      Historial de firma de una factura
// @Tags         signature
// @Security     Bearer
// @Produce      json
// @Param        invoiceId  path  string  true  "ID de la factura"
// @Success      200  {array}  dto.AuditEntryResponse
// @Router       /api/signature/invoices/{invoiceId}/history [get]
func (h *SignatureHandler) InvoiceHistory(c *fiber.Ctx) error {
	userID := GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	items, err := h.audit.InvoiceHistory(c.Context(), userID, c.Params("invoiceId"))
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(items)
}

// writeError traduce errores de dominio a HTTP. Los fallos internos salen con mensaje genérico.
func (h *SignatureHandler) writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	}

	var se *domain.SignatureError
	if errors.As(err, &se) {
		switch se.Kind {
		case domain.KindValidation:
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: se.Code, Message: se.Message})
		case domain.KindAuthorization:
			status := fiber.StatusForbidden
			if errors.Is(err, domain.ErrInvalidPin) {
				status = fiber.StatusUnauthorized
			}
			return c.Status(status).JSON(dto.ErrorResponse{Code: se.Code, Message: se.Message})
		}
	}

	h.log.Error().Err(err).
		Str("user_id", GetUserID(c)).
		Str("path", c.Path()).
		Str("code", domain.CodeOf(err)).
		Msg("error en operación de firma")
	code := "INTERNAL"
	if se != nil {
		code = se.Code
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: code, Message: "no se pudo completar la operación de firma"})
}
