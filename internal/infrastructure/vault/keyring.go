package vault

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"github.com/jhoicas/teif-firma/internal/domain"
	"golang.org/x/crypto/hkdf"
)

// Keyring llaves maestras versionadas. Cada blob sellado lleva la versión en su primer byte,
// así una llave nueva puede activarse sin re-cifrar de inmediato todos los certificados.
type Keyring struct {
	keys   map[int][]byte
	active int
}

// NewKeyring deriva una llave de datos por versión (HKDF-SHA256) a partir de los secretos maestros.
// Las versiones válidas van de 1 a 255.
func NewKeyring(secrets map[int][]byte, active int) (*Keyring, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("vault: no hay llaves maestras configuradas")
	}
	if _, ok := secrets[active]; !ok {
		return nil, fmt.Errorf("vault: la versión activa %d no está configurada", active)
	}
	keys := make(map[int][]byte, len(secrets))
	for v, secret := range secrets {
		if v < 1 || v > 255 {
			return nil, fmt.Errorf("vault: versión de llave %d fuera de rango", v)
		}
		if len(secret) < KeySize {
			return nil, fmt.Errorf("vault: la llave maestra v%d debe tener al menos %d bytes", v, KeySize)
		}
		dk, err := deriveDataKey(secret, v)
		if err != nil {
			return nil, err
		}
		keys[v] = dk
	}
	return &Keyring{keys: keys, active: active}, nil
}

func deriveDataKey(secret []byte, version int) ([]byte, error) {
	info := []byte(fmt.Sprintf("teif-certificate-blob/v%d", version))
	dk := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), dk); err != nil {
		return nil, fmt.Errorf("vault: derivar llave v%d: %w", version, err)
	}
	return dk, nil
}

// ActiveVersion versión con la que se sellan los blobs nuevos.
func (k *Keyring) ActiveVersion() int { return k.active }

// Versions versiones configuradas, ordenadas.
func (k *Keyring) Versions() []int {
	out := make([]int, 0, len(k.keys))
	for v := range k.keys {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// Seal cifra con la llave activa: version(1) || nonce || tag || ciphertext.
func (k *Keyring) Seal(plaintext []byte) ([]byte, int, error) {
	enc, err := Encrypt(plaintext, k.keys[k.active])
	if err != nil {
		return nil, 0, err
	}
	return append([]byte{byte(k.active)}, enc...), k.active, nil
}

// Open descifra un blob sellado por Seal. Versión desconocida o etiqueta inválida => ErrIntegrity.
func (k *Keyring) Open(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, domain.ErrIntegrity.Wrap(fmt.Errorf("blob vacío"))
	}
	key, ok := k.keys[int(blob[0])]
	if !ok {
		return nil, domain.ErrIntegrity.Wrap(fmt.Errorf("versión de llave %d desconocida", blob[0]))
	}
	return Decrypt(blob[1:], key)
}
