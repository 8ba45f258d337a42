// Constantes para la firma XML-DSig / XAdES de facturas TEIF (TradeNet).

package signer

// Namespaces y algoritmos XMLDSig / XAdES. El perfil regulatorio fija SHA-256 y RSA-SHA256.
const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES     = "http://uri.etsi.org/01903/v1.3.2#"
	AlgExcC14N         = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA256       = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	AlgSHA256          = "http://www.w3.org/2001/04/xmlenc#sha256"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// Identificadores dentro del bloque de firma.
const (
	SignatureID        = "SigFrs"
	ReferenceID        = "r-id-frs"
	SignedPropertiesID = "xades-SigFrs"
)

// SigningTimeLayout ISO 8601 en UTC con milisegundos.
const SigningTimeLayout = "2006-01-02T15:04:05.000Z"
