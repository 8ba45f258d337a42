package vault

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// DefaultPinCost factor de trabajo bcrypt para PINs (más alto que para contraseñas).
const DefaultPinCost = 12

// PinHasher hash adaptativo con sal para el PIN que protege la llave privada.
type PinHasher struct {
	cost int
}

// NewPinHasher usa DefaultPinCost si cost es menor que bcrypt.MinCost.
func NewPinHasher(cost int) *PinHasher {
	if cost < bcrypt.MinCost {
		cost = DefaultPinCost
	}
	return &PinHasher{cost: cost}
}

// Hash normaliza el PIN a NFC y lo hashea con bcrypt.
func (h *PinHasher) Hash(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(norm.NFC.String(pin)), h.cost)
	if err != nil {
		return "", fmt.Errorf("vault: hash de PIN: %w", err)
	}
	return string(hash), nil
}

// Verify compara en tiempo constante (bcrypt.CompareHashAndPassword).
func (h *PinHasher) Verify(pin, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(norm.NFC.String(pin))) == nil
}

// HashPin atajo con DefaultPinCost.
func HashPin(pin string) (string, error) {
	return NewPinHasher(DefaultPinCost).Hash(pin)
}

// VerifyPin atajo equivalente a PinHasher.Verify.
func VerifyPin(pin, hash string) bool {
	return NewPinHasher(DefaultPinCost).Verify(pin, hash)
}
