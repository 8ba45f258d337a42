package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/teif-firma/internal/infrastructure/teif/signer"
	"github.com/jhoicas/teif-firma/internal/testfixtures"
	"github.com/jhoicas/teif-firma/pkg/teif"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	pin = ""
	return out.String(), err
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestInspect(t *testing.T) {
	p := writeTemp(t, "firma.p12", testfixtures.SignerP12)

	out, err := run(t, "inspect", "--file", p, "--pin", testfixtures.PIN)
	require.NoError(t, err)
	assert.Contains(t, out, "Signataire Test")
	assert.Contains(t, out, "1a2b3c4d")
	assert.Contains(t, out, "RSA-2048")

	_, err = run(t, "inspect", "--file", p, "--pin", "0000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CERTIFICATE_PIN_MISMATCH")
}

func TestInspect_PinDesdeEntorno(t *testing.T) {
	p := writeTemp(t, "firma.pfx", testfixtures.SignerP12)
	t.Setenv("TEIF_PIN", testfixtures.PIN)

	out, err := run(t, "inspect", "--file", p)
	require.NoError(t, err)
	assert.Contains(t, out, "Serie:")
}

func TestVerify(t *testing.T) {
	creds, err := signer.ParseContainer(testfixtures.SignerP12, testfixtures.PIN)
	require.NoError(t, err)
	svc := signer.NewDigitalSignatureService(teif.RootElement)
	signed, _, err := svc.Sign(`<TEIF version="1.8.8"><InvoiceBody>1</InvoiceBody></TEIF>`, creds, creds.Certificate.NotBefore.Add(time.Hour))
	require.NoError(t, err)

	out, err := run(t, "verify", "--file", writeTemp(t, "ok.xml", []byte(signed)))
	require.NoError(t, err)
	assert.Contains(t, out, "Firma SigFrs válida")

	tampered := strings.Replace(signed, "<InvoiceBody>1</InvoiceBody>", "<InvoiceBody>2</InvoiceBody>", 1)
	_, err = run(t, "verify", "--file", writeTemp(t, "bad.xml", []byte(tampered)))
	assert.Error(t, err)
}
