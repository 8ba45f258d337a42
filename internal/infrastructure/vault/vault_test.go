package vault_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jhoicas/teif-firma/internal/domain"
	"github.com/jhoicas/teif-firma/internal/infrastructure/vault"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, vault.KeySize)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := randomKey(t)
	cases := [][]byte{
		{},
		[]byte("a"),
		[]byte("contenedor PKCS#12 de prueba"),
		bytes.Repeat([]byte{0x00, 0xff}, 4096),
	}
	for _, p := range cases {
		blob, err := vault.Encrypt(p, key)
		require.NoError(t, err)
		assert.Len(t, blob, vault.NonceSize+vault.TagSize+len(p))

		got, err := vault.Decrypt(blob, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p, got), "el round-trip debe devolver el texto original")
	}
}

func TestEncrypt_NonceFresco(t *testing.T) {
	key := randomKey(t)
	p := []byte("mismo contenido")

	a, err := vault.Encrypt(p, key)
	require.NoError(t, err)
	b, err := vault.Encrypt(p, key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "dos cifrados del mismo texto deben diferir")
	assert.NotEqual(t, a[:vault.NonceSize], b[:vault.NonceSize])

	for _, blob := range [][]byte{a, b} {
		got, err := vault.Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestDecrypt_BitAlteradoFallaCerrado(t *testing.T) {
	key := randomKey(t)
	blob, err := vault.Encrypt([]byte("certificado"), key)
	require.NoError(t, err)

	for i := 0; i < len(blob); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), blob...)
			tampered[i] ^= 1 << bit

			got, err := vault.Decrypt(tampered, key)
			require.Error(t, err, "byte %d bit %d", i, bit)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, domain.ErrIntegrity))
			assert.Equal(t, domain.KindIntegrity, domain.KindOf(err))
		}
	}
}

func TestDecrypt_LlaveIncorrecta(t *testing.T) {
	blob, err := vault.Encrypt([]byte("certificado"), randomKey(t))
	require.NoError(t, err)

	got, err := vault.Decrypt(blob, randomKey(t))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestDecrypt_BlobCorto(t *testing.T) {
	_, err := vault.Decrypt(make([]byte, 10), randomKey(t))
	assert.ErrorIs(t, err, domain.ErrIntegrity)
}

func TestEncrypt_LlaveDeLongitudInvalida(t *testing.T) {
	_, err := vault.Encrypt([]byte("x"), []byte("corta"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrIntegrity)
}

func TestKeyring_RotacionDeVersion(t *testing.T) {
	s1, s2 := randomKey(t), randomKey(t)

	old, err := vault.NewKeyring(map[int][]byte{1: s1}, 1)
	require.NoError(t, err)
	sealed, v, err := old.Seal([]byte("p12"))
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, byte(1), sealed[0])

	rotated, err := vault.NewKeyring(map[int][]byte{1: s1, 2: s2}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rotated.Versions())

	got, err := rotated.Open(sealed)
	require.NoError(t, err, "los blobs v1 siguen legibles tras activar v2")
	assert.Equal(t, []byte("p12"), got)

	resealed, v, err := rotated.Seal(got)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, byte(2), resealed[0])

	_, err = old.Open(resealed)
	assert.ErrorIs(t, err, domain.ErrIntegrity, "una versión desconocida es un fallo de integridad")
}

func TestKeyring_ConfiguracionInvalida(t *testing.T) {
	_, err := vault.NewKeyring(nil, 1)
	assert.Error(t, err)

	_, err = vault.NewKeyring(map[int][]byte{1: randomKey(t)}, 2)
	assert.Error(t, err)

	_, err = vault.NewKeyring(map[int][]byte{1: []byte("corta")}, 1)
	assert.Error(t, err)

	_, err = vault.NewKeyring(map[int][]byte{300: randomKey(t)}, 300)
	assert.Error(t, err)
}

func TestPin_HashYVerify(t *testing.T) {
	h := vault.NewPinHasher(bcrypt.MinCost)

	hash, err := h.Hash("1234")
	require.NoError(t, err)
	assert.NotContains(t, hash, "1234")
	assert.True(t, h.Verify("1234", hash))
	assert.False(t, h.Verify("4321", hash))
	assert.False(t, h.Verify("", hash))
}

func TestPin_NormalizacionUnicode(t *testing.T) {
	h := vault.NewPinHasher(bcrypt.MinCost)
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	hash, err := h.Hash(composed)
	require.NoError(t, err)
	assert.True(t, h.Verify(decomposed, hash))
}

func TestHashPin_CostePorDefecto(t *testing.T) {
	hash, err := vault.HashPin("1234")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, 12)
	assert.True(t, vault.VerifyPin("1234", hash))
	assert.False(t, vault.VerifyPin("12345", hash))
}

func TestVault_SealOpen(t *testing.T) {
	ring, err := vault.NewKeyring(map[int][]byte{1: randomKey(t)}, 1)
	require.NoError(t, err)
	v := vault.New(ring, vault.NewPinHasher(bcrypt.MinCost))

	blob, version, err := v.Seal([]byte("contenedor"))
	require.NoError(t, err)
	assert.Equal(t, v.ActiveKeyVersion(), version)
	assert.Equal(t, []int{1}, v.KeyVersions())

	got, err := v.Open(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("contenedor"), got)

	buf := []byte("secreto")
	vault.Wipe(buf)
	assert.Equal(t, make([]byte, 7), buf)
}
