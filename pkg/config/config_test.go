package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	keyV1 = strings.Repeat("ab", 32)
	keyV2 = strings.Repeat("cd", 32)
)

func baseViper() *viper.Viper {
	v := viper.New()
	v.Set("SIGNATURE_ENCRYPTION_KEY", keyV1)
	return v
}

func TestFromViper_ValoresPorDefecto(t *testing.T) {
	cfg := fromViper(baseViper())

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, 4, cfg.Signature.PinMinLength)
	assert.Equal(t, 20, cfg.Signature.PinMaxLength)
	assert.Equal(t, 12, cfg.Signature.PinCost)
	assert.Equal(t, int64(10*1024*1024), cfg.Signature.MaxCertificateSize)
	assert.True(t, cfg.Signature.RequireHTTPS)
	assert.Equal(t, AuditBackendPostgres, cfg.Audit.Backend)
	assert.Equal(t, MinAuditRetentionDays, cfg.Audit.RetentionDays)
	require.NoError(t, cfg.Validate())
}

func TestMasterKeys_Rotacion(t *testing.T) {
	v := baseViper()
	v.Set("SIGNATURE_ENCRYPTION_KEYS", "2:"+keyV2)
	cfg := fromViper(v)

	keys, err := cfg.Signature.MasterKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Len(t, keys[1], 32)
	assert.Equal(t, 2, cfg.Signature.ActiveVersion(keys), "sin versión explícita se usa la más alta")

	v.Set("SIGNATURE_ACTIVE_KEY_VERSION", 1)
	cfg = fromViper(v)
	assert.Equal(t, 1, cfg.Signature.ActiveVersion(keys))
	require.NoError(t, cfg.Validate())
}

func TestValidate_Errores(t *testing.T) {
	cases := map[string]func(v *viper.Viper){
		"sin llave":            func(v *viper.Viper) { v.Set("SIGNATURE_ENCRYPTION_KEY", "") },
		"llave corta":          func(v *viper.Viper) { v.Set("SIGNATURE_ENCRYPTION_KEY", "abcd") },
		"llave no hex":         func(v *viper.Viper) { v.Set("SIGNATURE_ENCRYPTION_KEY", strings.Repeat("zz", 32)) },
		"versión activa ajena": func(v *viper.Viper) { v.Set("SIGNATURE_ACTIVE_KEY_VERSION", 7) },
		"entrada sin versión":  func(v *viper.Viper) { v.Set("SIGNATURE_ENCRYPTION_KEYS", keyV2) },
		"PIN mínimo bajo":      func(v *viper.Viper) { v.Set("SIGNATURE_PIN_MIN_LENGTH", 3) },
		"retención corta":      func(v *viper.Viper) { v.Set("AUDIT_RETENTION_DAYS", 30) },
		"backend desconocido":  func(v *viper.Viper) { v.Set("AUDIT_BACKEND", "s3") },
		"mongo sin URI":        func(v *viper.Viper) { v.Set("AUDIT_BACKEND", "mongo") },
		"coste bajo en prod": func(v *viper.Viper) {
			v.Set("APP_ENV", "production")
			v.Set("JWT_SECRET", "x")
			v.Set("SIGNATURE_PIN_COST", 10)
		},
		"prod sin JWT": func(v *viper.Viper) { v.Set("APP_ENV", "production") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			v := baseViper()
			mutate(v)
			assert.Error(t, fromViper(v).Validate())
		})
	}
}
