// Cifrado autenticado de contenedores PKCS#12 en reposo (AES-256-GCM).

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/jhoicas/teif-firma/internal/domain"
)

const (
	// KeySize llave AES-256.
	KeySize = 32
	// NonceSize IV de 16 bytes (mínimo exigido para los blobs de certificados).
	NonceSize = 16
	// TagSize etiqueta de autenticación GCM.
	TagSize = 16
)

// Encrypt cifra plaintext con AES-256-GCM y un nonce aleatorio nuevo.
// Formato de salida: nonce(16) || tag(16) || ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generar nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil) // ciphertext || tag
	ctLen := len(sealed) - TagSize

	out := make([]byte, 0, NonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed[ctLen:]...)
	out = append(out, sealed[:ctLen]...)
	return out, nil
}

// Decrypt separa nonce/tag/ciphertext y verifica la etiqueta. Cualquier alteración
// del blob o una llave distinta devuelve domain.ErrIntegrity y ningún dato.
func Decrypt(blob, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < NonceSize+TagSize {
		return nil, domain.ErrIntegrity.Wrap(fmt.Errorf("blob de %d bytes demasiado corto", len(blob)))
	}
	nonce := blob[:NonceSize]
	tag := blob[NonceSize : NonceSize+TagSize]
	ct := blob[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, domain.ErrIntegrity.Wrap(err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: la llave debe tener %d bytes, tiene %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: crear cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, fmt.Errorf("vault: crear GCM: %w", err)
	}
	return gcm, nil
}

// Wipe sobrescribe con ceros material sensible en memoria.
func Wipe(b []byte) {
	clear(b)
}
