// Package vault custodia de certificados: cifrado en reposo y hash del PIN.
package vault

// Vault agrupa el keyring y el hasher de PIN que usa el caso de uso de certificados.
type Vault struct {
	ring *Keyring
	pins *PinHasher
}

// New construye el vault.
func New(ring *Keyring, pins *PinHasher) *Vault {
	return &Vault{ring: ring, pins: pins}
}

func (v *Vault) Seal(plaintext []byte) ([]byte, int, error) { return v.ring.Seal(plaintext) }
func (v *Vault) Open(blob []byte) ([]byte, error)          { return v.ring.Open(blob) }
func (v *Vault) ActiveKeyVersion() int                     { return v.ring.ActiveVersion() }
func (v *Vault) HashPin(pin string) (string, error)        { return v.pins.Hash(pin) }
func (v *Vault) VerifyPin(pin, hash string) bool           { return v.pins.Verify(pin, hash) }
func (v *Vault) KeyVersions() []int                        { return v.ring.Versions() }
