// Lectura del contenedor PKCS#12 subido por el usuario y extracción de metadatos.

package signer

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/pkg/teif"
	"golang.org/x/crypto/pkcs12"
)

// ParseContainer abre el .p12/.pfx con el PIN. Errores tipados:
// PIN incorrecto => ErrCertificatePinMismatch, contenedor ilegible => ErrInvalidCertificate,
// llave no RSA => ErrUnsupportedKeyAlgorithm.
func ParseContainer(data []byte, pin string) (teif.Credentials, error) {
	if len(data) == 0 {
		return teif.Credentials{}, domain.ErrInvalidCertificate.Wrap(errors.New("contenedor vacío"))
	}
	priv, cert, err := pkcs12.Decode(data, pin)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) {
			return teif.Credentials{}, domain.ErrCertificatePinMismatch
		}
		return teif.Credentials{}, domain.ErrInvalidCertificate.Wrap(err)
	}
	if cert == nil {
		return teif.Credentials{}, domain.ErrInvalidCertificate.Wrap(errors.New("el contenedor no incluye certificado"))
	}
	rsaKey, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return teif.Credentials{}, domain.ErrUnsupportedKeyAlgorithm.Wrap(fmt.Errorf("llave %T", priv))
	}
	return teif.Credentials{Certificate: cert, PrivateKey: rsaKey}, nil
}

// Metadata datos que se guardan junto al blob cifrado.
func Metadata(creds teif.Credentials) entity.CertificateMetadata {
	cert := creds.Certificate
	return entity.CertificateMetadata{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		SerialNumber: cert.SerialNumber.Text(16),
		ValidFrom:    cert.NotBefore.UTC(),
		ValidUntil:   cert.NotAfter.UTC(),
		KeyAlgorithm: fmt.Sprintf("RSA-%d", creds.PrivateKey.N.BitLen()),
	}
}

// DestroyKey pone en cero los componentes privados de la llave RSA.
func DestroyKey(key *rsa.PrivateKey) {
	if key == nil {
		return
	}
	if key.D != nil {
		key.D.SetInt64(0)
	}
	for _, p := range key.Primes {
		p.SetInt64(0)
	}
	key.Precomputed = rsa.PrecomputedValues{}
}

// CertDigestAndIssuerSerial devuelve el digest SHA-256 del certificado (Base64), el emisor y el serial decimal para XAdES.
func CertDigestAndIssuerSerial(cert *x509.Certificate) (digestB64 string, issuerName string, serial string) {
	h := sha256.Sum256(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h[:])
	issuerName = cert.Issuer.String()
	serial = cert.SerialNumber.String()
	return digestB64, issuerName, serial
}
