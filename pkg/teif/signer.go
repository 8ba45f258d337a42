// Package teif: contrato de firma XML-DSig/XAdES para facturas TEIF 1.8.8 (Túnez).

package teif

import (
	"crypto/rsa"
	"crypto/x509"
	"time"
)

// RootElement elemento raíz de un documento TEIF.
const RootElement = "TEIF"

// Version versión del estándar soportada.
const Version = "1.8.8"

// Credentials certificado y llave privada prestados para una sola firma.
type Credentials struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
}

// SignatureBlock elemento ds:Signature ya serializado, listo para incrustar.
type SignatureBlock struct {
	ID             string // atributo Id de ds:Signature
	XML            string
	DigestValue    string
	SignatureValue string
	SigningTime    time.Time
}

// Signer separa las etapas de la firma para que el llamador pueda seguir la máquina de estados:
// CanonicalDocument (Canonicalized), DigestCanonical (Digested), BuildSignature (Signed), Embed (Embedded).
type Signer interface {
	// CanonicalDocument canonicaliza el documento sin firmas previas (transform enveloped).
	CanonicalDocument(xml string) ([]byte, error)
	// DigestCanonical base64(SHA-256) de la forma canónica.
	DigestCanonical(canonical []byte) string
	// BuildSignature arma SignedInfo, lo firma con RSA-SHA256 y agrega KeyInfo y QualifyingProperties.
	BuildSignature(digestValue string, creds Credentials, signingTime time.Time) (*SignatureBlock, error)
	// Embed inserta la firma justo antes del cierre del elemento raíz sin tocar el resto del texto.
	Embed(xml string, block *SignatureBlock) (string, error)
}
