// Servicio de firma XML-DSig/XAdES para facturas TEIF.
// Inserta <ds:Signature> justo antes del cierre del elemento raíz del XML original.

package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

// DigitalSignatureService implementa teif.Signer.
type DigitalSignatureService struct {
	rootElement string // nombre local exigido para la raíz; vacío acepta cualquiera
}

// NewDigitalSignatureService crea el servicio. rootElement suele ser teif.RootElement.
func NewDigitalSignatureService(rootElement string) *DigitalSignatureService {
	return &DigitalSignatureService{rootElement: rootElement}
}

// Sign encadena Digest, BuildSignature y Embed.
func (s *DigitalSignatureService) Sign(xml string, creds teif.Credentials, signingTime time.Time) (string, *teif.SignatureBlock, error) {
	digest, err := s.Digest(xml)
	if err != nil {
		return "", nil, err
	}
	block, err := s.BuildSignature(digest, creds, signingTime)
	if err != nil {
		return "", nil, err
	}
	signed, err := s.Embed(xml, block)
	if err != nil {
		return "", nil, err
	}
	return signed, block, nil
}

// Digest canonicaliza el cuerpo de la factura (transform enveloped: sin ds:Signature previas)
// y devuelve base64(SHA-256).
func (s *DigitalSignatureService) Digest(xml string) (string, error) {
	canonical, err := s.CanonicalDocument(xml)
	if err != nil {
		return "", err
	}
	return s.DigestCanonical(canonical), nil
}

// CanonicalDocument forma canónica de la raíz sin ds:Signature previas.
func (s *DigitalSignatureService) CanonicalDocument(xml string) ([]byte, error) {
	root, err := s.parseRoot(xml)
	if err != nil {
		return nil, err
	}
	return canonicalBody(root)
}

// DigestCanonical base64(SHA-256(canonical)).
func (s *DigitalSignatureService) DigestCanonical(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// canonicalBody copia la raíz, quita firmas existentes y canonicaliza.
func canonicalBody(root *etree.Element) ([]byte, error) {
	body := root.Copy()
	removeSignatureElements(body)
	return CanonicalizeElement(body)
}

// BuildSignature arma el bloque ds:Signature completo con SignedInfo firmado.
func (s *DigitalSignatureService) BuildSignature(digestValue string, creds teif.Credentials, signingTime time.Time) (*teif.SignatureBlock, error) {
	if creds.Certificate == nil || creds.PrivateKey == nil {
		return nil, errors.New("teif: credenciales incompletas")
	}
	signingTime = signingTime.UTC()

	sig := etree.NewElement("ds:Signature")
	sig.CreateAttr("xmlns:ds", NamespaceDS)
	sig.CreateAttr("xmlns:xades", NamespaceXAdES)
	sig.CreateAttr("Id", SignatureID)

	signedInfo := buildSignedInfo(sig, digestValue)

	// SignedInfo se canonicaliza dentro de ds:Signature para que el verificador obtenga los mismos bytes.
	canonicalSignedInfo, err := CanonicalizeElement(signedInfo)
	if err != nil {
		return nil, err
	}
	signHash := sha256.Sum256(canonicalSignedInfo)
	rawSignature, err := rsa.SignPKCS1v15(rand.Reader, creds.PrivateKey, crypto.SHA256, signHash[:])
	if err != nil {
		return nil, fmt.Errorf("teif: firmar SignedInfo: %w", err)
	}
	signatureValue := base64.StdEncoding.EncodeToString(rawSignature)

	sig.CreateElement("ds:SignatureValue").SetText(signatureValue)

	x509Data := sig.CreateElement("ds:KeyInfo").CreateElement("ds:X509Data")
	x509Data.CreateElement("ds:X509Certificate").SetText(base64.StdEncoding.EncodeToString(creds.Certificate.Raw))

	buildQualifyingProperties(sig, creds, signingTime)

	doc := etree.NewDocument()
	doc.SetRoot(sig)
	out, err := doc.WriteToString()
	if err != nil {
		return nil, fmt.Errorf("teif: serializar Signature: %w", err)
	}
	return &teif.SignatureBlock{
		ID:             SignatureID,
		XML:            out,
		DigestValue:    digestValue,
		SignatureValue: signatureValue,
		SigningTime:    signingTime,
	}, nil
}

func buildSignedInfo(sig *etree.Element, digestValue string) *etree.Element {
	si := sig.CreateElement("ds:SignedInfo")
	si.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", AlgExcC14N)
	si.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", AlgRSASHA256)

	ref := si.CreateElement("ds:Reference")
	ref.CreateAttr("Id", ReferenceID)
	ref.CreateAttr("URI", "")
	transforms := ref.CreateElement("ds:Transforms")
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", TransformEnveloped)
	transforms.CreateElement("ds:Transform").CreateAttr("Algorithm", AlgExcC14N)
	ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgSHA256)
	ref.CreateElement("ds:DigestValue").SetText(digestValue)
	return si
}

// buildQualifyingProperties XAdES: SigningTime, SigningCertificate y formato del objeto firmado.
func buildQualifyingProperties(sig *etree.Element, creds teif.Credentials, signingTime time.Time) {
	qp := sig.CreateElement("ds:Object").CreateElement("xades:QualifyingProperties")
	qp.CreateAttr("Target", "#"+SignatureID)
	sp := qp.CreateElement("xades:SignedProperties")
	sp.CreateAttr("Id", SignedPropertiesID)

	ssp := sp.CreateElement("xades:SignedSignatureProperties")
	ssp.CreateElement("xades:SigningTime").SetText(signingTime.Format(SigningTimeLayout))

	certDigest, issuerName, serial := CertDigestAndIssuerSerial(creds.Certificate)
	cert := ssp.CreateElement("xades:SigningCertificate").CreateElement("xades:Cert")
	cd := cert.CreateElement("xades:CertDigest")
	cd.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", AlgSHA256)
	cd.CreateElement("ds:DigestValue").SetText(certDigest)
	is := cert.CreateElement("xades:IssuerSerial")
	is.CreateElement("ds:X509IssuerName").SetText(issuerName)
	is.CreateElement("ds:X509SerialNumber").SetText(serial)

	dof := sp.CreateElement("xades:SignedDataObjectProperties").CreateElement("xades:DataObjectFormat")
	dof.CreateAttr("ObjectReference", "#"+ReferenceID)
	dof.CreateElement("xades:MimeType").SetText("text/xml")
	dof.CreateElement("xades:Encoding").SetText("UTF-8")
}

// Embed inserta la firma inmediatamente antes del último cierre de la raíz. El resto del
// documento queda idéntico byte a byte.
func (s *DigitalSignatureService) Embed(xml string, block *teif.SignatureBlock) (string, error) {
	if block == nil || block.XML == "" {
		return "", errors.New("teif: bloque de firma vacío")
	}
	root, err := s.parseRoot(xml)
	if err != nil {
		return "", err
	}
	idx := lastClosingTag(xml, root.FullTag())
	if idx < 0 {
		return "", domain.ErrMalformedDocument.Wrap(fmt.Errorf("no se encontró </%s>", root.FullTag()))
	}
	var sb strings.Builder
	sb.Grow(len(xml) + len(block.XML))
	sb.WriteString(xml[:idx])
	sb.WriteString(block.XML)
	sb.WriteString(xml[idx:])
	return sb.String(), nil
}

// lastClosingTag posición de la etiqueta "</tag>" que cierra la raíz (se admiten espacios antes
// de '>'); -1 si no existe. Tras el cierre solo puede haber Misc: espacios, comentarios o PIs, así
// que un "</tag>" dentro de un comentario final no cuenta.
func lastClosingTag(xml, tag string) int {
	needle := "</" + tag
	end := len(xml)
	for {
		idx := strings.LastIndex(xml[:end], needle)
		if idx < 0 {
			return -1
		}
		rest := strings.TrimLeft(xml[idx+len(needle):], " \t\r\n")
		if strings.HasPrefix(rest, ">") && onlyMisc(rest[1:]) {
			return idx
		}
		end = idx
	}
}

// onlyMisc indica si s contiene solo espacios, comentarios e instrucciones de procesamiento.
func onlyMisc(s string) bool {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case s == "":
			return true
		case strings.HasPrefix(s, "<!--"):
			end := strings.Index(s[4:], "-->")
			if end < 0 {
				return false
			}
			s = s[4+end+3:]
		case strings.HasPrefix(s, "<?"):
			end := strings.Index(s[2:], "?>")
			if end < 0 {
				return false
			}
			s = s[2+end+2:]
		default:
			return false
		}
	}
}

func (s *DigitalSignatureService) parseRoot(xml string) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		return nil, domain.ErrMalformedDocument.Wrap(err)
	}
	root := doc.Root()
	if root == nil {
		return nil, domain.ErrMalformedDocument.Wrap(errors.New("documento sin raíz"))
	}
	if s.rootElement != "" && root.Tag != s.rootElement {
		return nil, domain.ErrMalformedDocument.Wrap(fmt.Errorf("raíz <%s>, se esperaba <%s>", root.FullTag(), s.rootElement))
	}
	return root, nil
}

// removeSignatureElements quita recursivamente los ds:Signature (transform enveloped).
func removeSignatureElements(el *etree.Element) {
	for _, child := range el.ChildElements() {
		if isSignatureElement(child) {
			el.RemoveChild(child)
			continue
		}
		removeSignatureElements(child)
	}
}

func isSignatureElement(el *etree.Element) bool {
	return el.Tag == "Signature" && el.NamespaceURI() == NamespaceDS
}

var _ teif.Signer = (*DigitalSignatureService)(nil)
