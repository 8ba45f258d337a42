package signature

import (
	"context"

	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

// Vault custodia del contenedor cifrado y del hash del PIN.
type Vault interface {
	// Seal cifra con la llave activa y devuelve el blob y su versión de llave.
	Seal(plaintext []byte) ([]byte, int, error)
	// Open descifra; cualquier alteración o versión desconocida => domain.ErrIntegrity.
	Open(blob []byte) ([]byte, error)
	ActiveKeyVersion() int
	HashPin(pin string) (string, error)
	VerifyPin(pin, hash string) bool
}

// CertificateTxRunner ejecuta fn en una transacción serializada por usuario, de forma que
// un resolve nunca observe un upload o revoke a medias aunque haya varias réplicas.
type CertificateTxRunner interface {
	RunForUser(ctx context.Context, userID string, fn func(repo repository.CertificateRepository) error) error
}

// RequestMeta datos del cliente que se guardan en auditoría.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}
