package domain

import "errors"

// Errores genéricos de dominio (sin dependencias externas).
var (
	ErrNotFound     = errors.New("recurso no encontrado")
	ErrInvalidInput = errors.New("entrada inválida")
	ErrUnauthorized = errors.New("no autorizado")
	ErrForbidden    = errors.New("acceso denegado")
)

// ErrorKind clasifica los errores de firma. El conjunto es cerrado: los llamadores
// deben manejar cada tipo explícitamente (ver KindOf).
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuthorization
	KindIntegrity
	KindMalformedDocument
	KindAuditWrite
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindIntegrity:
		return "integrity"
	case KindMalformedDocument:
		return "malformed_document"
	case KindAuditWrite:
		return "audit_write"
	default:
		return "internal"
	}
}

// SignatureError error tipado con código estable para la frontera HTTP y la auditoría.
// Message nunca incluye el PIN ni material del certificado descifrado.
type SignatureError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *SignatureError) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *SignatureError) Unwrap() error { return e.Err }

// Is compara por código, así errors.Is(err, ErrInvalidPin) funciona aunque el error venga envuelto con causa.
func (e *SignatureError) Is(target error) bool {
	t, ok := target.(*SignatureError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap devuelve una copia del error base con la causa adjunta.
func (e *SignatureError) Wrap(cause error) error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Errores de validación del contenedor (400).
var (
	ErrInvalidCertificate      = &SignatureError{Kind: KindValidation, Code: "INVALID_CERTIFICATE", Message: "contenedor PKCS#12 inválido"}
	ErrCertificatePinMismatch  = &SignatureError{Kind: KindValidation, Code: "CERTIFICATE_PIN_MISMATCH", Message: "el PIN no abre el contenedor PKCS#12"}
	ErrUnsupportedKeyAlgorithm = &SignatureError{Kind: KindValidation, Code: "UNSUPPORTED_KEY_ALGORITHM", Message: "se requiere una llave RSA"}
	ErrInvalidPinFormat        = &SignatureError{Kind: KindValidation, Code: "INVALID_PIN_FORMAT", Message: "longitud de PIN fuera de rango"}
	ErrInvoiceAlreadySigned    = &SignatureError{Kind: KindValidation, Code: "INVOICE_ALREADY_SIGNED", Message: "la factura ya está firmada"}
)

// Rechazos de transporte del adaptador HTTP (400), auditados igual que los del núcleo.
var (
	ErrMissingCertificateFile = &SignatureError{Kind: KindValidation, Code: "MISSING_FILE", Message: "se requiere el archivo del certificado"}
	ErrInvalidFileType        = &SignatureError{Kind: KindValidation, Code: "INVALID_FILE_TYPE", Message: "el certificado debe ser .p12 o .pfx"}
	ErrCertificateTooLarge    = &SignatureError{Kind: KindValidation, Code: "FILE_TOO_LARGE", Message: "el archivo del certificado excede el tamaño máximo"}
	ErrInvalidRequest         = &SignatureError{Kind: KindValidation, Code: "INVALID_REQUEST", Message: "cuerpo de la petición inválido"}
)

// Errores de autorización (401/403). No se reintentan.
var (
	ErrInvalidPin             = &SignatureError{Kind: KindAuthorization, Code: "INVALID_PIN", Message: "PIN incorrecto"}
	ErrCertificateExpired     = &SignatureError{Kind: KindAuthorization, Code: "CERTIFICATE_EXPIRED", Message: "el certificado ha expirado"}
	ErrCertificateNotYetValid = &SignatureError{Kind: KindAuthorization, Code: "CERTIFICATE_NOT_YET_VALID", Message: "el certificado aún no es válido"}
	ErrNoCertificate          = &SignatureError{Kind: KindAuthorization, Code: "NO_CERTIFICATE", Message: "el usuario no tiene certificado activo"}
	ErrCertificateRevoked     = &SignatureError{Kind: KindAuthorization, Code: "CERTIFICATE_REVOKED", Message: "el certificado fue revocado"}
)

// Errores fatales (500, mensaje genérico hacia afuera).
var (
	ErrIntegrity         = &SignatureError{Kind: KindIntegrity, Code: "INTEGRITY_FAILURE", Message: "el contenido cifrado no supera la verificación de integridad"}
	ErrSignatureInvalid  = &SignatureError{Kind: KindIntegrity, Code: "SIGNATURE_INVALID", Message: "la firma XML no supera la verificación"}
	ErrMalformedDocument = &SignatureError{Kind: KindMalformedDocument, Code: "MALFORMED_DOCUMENT", Message: "estructura XML inesperada"}
	ErrAuditWrite        = &SignatureError{Kind: KindAuditWrite, Code: "AUDIT_WRITE_FAILURE", Message: "no se pudo registrar la auditoría"}
)

// KindOf devuelve el tipo del primer SignatureError de la cadena; KindInternal si no hay ninguno.
func KindOf(err error) ErrorKind {
	var se *SignatureError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// CodeOf devuelve el código estable del error o "INTERNAL".
func CodeOf(err error) string {
	var se *SignatureError
	if errors.As(err, &se) {
		return se.Code
	}
	return "INTERNAL"
}
