// Package testfixtures contenedores PKCS#12 de prueba generados con openssl (PBE 3DES/SHA1).
package testfixtures

import _ "embed"

// PIN de ambos contenedores.
const PIN = "1234"

// SignerP12 RSA-2048 autofirmado, CN=Signataire Test, serial 0x1A2B3C4D.
//
//go:embed testdata/signer.p12
var SignerP12 []byte

// ECP12 llave P-256; no soportada por el firmador.
//
//go:embed testdata/ec.p12
var ECP12 []byte
