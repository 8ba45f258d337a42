package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/teif-firma/internal/domain"
)

// VerificationResult resumen de una firma válida.
type VerificationResult struct {
	SignatureID string
	DigestValue string
	SigningTime time.Time
	Certificate *x509.Certificate
}

// Verify comprueba la firma incrustada: digest del cuerpo, firma RSA sobre SignedInfo y
// coherencia del certificado con SigningCertificate. Cualquier discrepancia => ErrSignatureInvalid.
func (s *DigitalSignatureService) Verify(signedXML string) (*VerificationResult, error) {
	root, err := s.parseRoot(signedXML)
	if err != nil {
		return nil, err
	}
	sig := findSignature(root)
	if sig == nil {
		return nil, domain.ErrSignatureInvalid.Wrap(errors.New("el documento no contiene ds:Signature"))
	}

	signedInfo := childNS(sig, "SignedInfo", NamespaceDS)
	if signedInfo == nil {
		return nil, domain.ErrSignatureInvalid.Wrap(errors.New("falta SignedInfo"))
	}
	ref := childNS(signedInfo, "Reference", NamespaceDS)
	if ref == nil {
		return nil, domain.ErrSignatureInvalid.Wrap(errors.New("falta Reference"))
	}
	if uri := ref.SelectAttrValue("URI", "-"); uri != "" {
		return nil, domain.ErrSignatureInvalid.Wrap(fmt.Errorf("Reference URI %q no soportada", uri))
	}
	declared := strings.TrimSpace(textOf(childNS(ref, "DigestValue", NamespaceDS)))

	body, err := canonicalBody(root)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(body)
	computed := base64.StdEncoding.EncodeToString(sum[:])
	if computed != declared {
		return nil, domain.ErrSignatureInvalid.Wrap(errors.New("el digest del documento no coincide"))
	}

	cert, err := embeddedCertificate(sig)
	if err != nil {
		return nil, err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, domain.ErrUnsupportedKeyAlgorithm
	}

	rawSig, err := base64.StdEncoding.DecodeString(compactBase64(textOf(childNS(sig, "SignatureValue", NamespaceDS))))
	if err != nil {
		return nil, domain.ErrSignatureInvalid.Wrap(fmt.Errorf("SignatureValue: %w", err))
	}
	canonicalSignedInfo, err := CanonicalizeElement(signedInfo)
	if err != nil {
		return nil, err
	}
	siHash := sha256.Sum256(canonicalSignedInfo)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, siHash[:], rawSig); err != nil {
		return nil, domain.ErrSignatureInvalid.Wrap(err)
	}

	res := &VerificationResult{
		SignatureID: sig.SelectAttrValue("Id", ""),
		DigestValue: declared,
		Certificate: cert,
	}
	if err := checkSignedProperties(sig, cert, res); err != nil {
		return nil, err
	}
	return res, nil
}

// checkSignedProperties valida el digest de SigningCertificate y lee SigningTime.
func checkSignedProperties(sig *etree.Element, cert *x509.Certificate, res *VerificationResult) error {
	sp := sig.FindElement("./Object/QualifyingProperties/SignedProperties")
	if sp == nil {
		return domain.ErrSignatureInvalid.Wrap(errors.New("faltan SignedProperties"))
	}
	if st := sp.FindElement(".//SigningTime"); st != nil {
		t, err := time.Parse(SigningTimeLayout, strings.TrimSpace(st.Text()))
		if err != nil {
			return domain.ErrSignatureInvalid.Wrap(fmt.Errorf("SigningTime: %w", err))
		}
		res.SigningTime = t
	}
	certDigest, _, _ := CertDigestAndIssuerSerial(cert)
	dv := sp.FindElement(".//SigningCertificate/Cert/CertDigest/DigestValue")
	if dv == nil || strings.TrimSpace(dv.Text()) != certDigest {
		return domain.ErrSignatureInvalid.Wrap(errors.New("SigningCertificate no corresponde al certificado de KeyInfo"))
	}
	return nil
}

func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	el := sig.FindElement("./KeyInfo/X509Data/X509Certificate")
	if el == nil {
		return nil, domain.ErrSignatureInvalid.Wrap(errors.New("falta X509Certificate"))
	}
	der, err := base64.StdEncoding.DecodeString(compactBase64(el.Text()))
	if err != nil {
		return nil, domain.ErrSignatureInvalid.Wrap(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, domain.ErrSignatureInvalid.Wrap(err)
	}
	return cert, nil
}

func findSignature(el *etree.Element) *etree.Element {
	for _, child := range el.ChildElements() {
		if isSignatureElement(child) {
			return child
		}
		if found := findSignature(child); found != nil {
			return found
		}
	}
	return nil
}

func childNS(el *etree.Element, tag, ns string) *etree.Element {
	if el == nil {
		return nil
	}
	for _, c := range el.ChildElements() {
		if c.Tag == tag && c.NamespaceURI() == ns {
			return c
		}
	}
	return nil
}

func textOf(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return el.Text()
}

// compactBase64 quita saltos de línea y espacios que algunos emisores intercalan.
func compactBase64(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}
