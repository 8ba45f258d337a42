package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
)

func TestAuditDocument_BSONOmiteOpcionales(t *testing.T) {
	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	entry := &entity.SignatureAuditEntry{
		ID: "a1", UserID: "u1", Action: entity.AuditActionRevoke, Status: entity.AuditStatusSuccess, CreatedAt: at,
	}

	raw, err := bson.Marshal(toDocument(entry))
	require.NoError(t, err)

	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	assert.Equal(t, "a1", m["_id"])
	assert.Equal(t, "REVOKE", m["action"])
	assert.NotContains(t, m, "invoice_id")
	assert.NotContains(t, m, "error_code")

	var doc auditDocument
	require.NoError(t, bson.Unmarshal(raw, &doc))
	back := fromDocument(&doc)
	assert.Equal(t, entry.UserID, back.UserID)
	assert.True(t, at.Equal(back.CreatedAt))
}

func TestUserFilter(t *testing.T) {
	assert.Equal(t, bson.M{"user_id": "u1"}, userFilter(entity.AuditFilter{UserID: "u1"}))
	assert.Equal(t, bson.M{"user_id": "u1", "action": "SIGN"}, userFilter(entity.AuditFilter{UserID: "u1", Action: "SIGN"}))
}

func TestNewAuditStore_URIInvalida(t *testing.T) {
	_, err := NewAuditStore(context.Background(), Config{URI: "postgres://localhost/teif", Database: "teif"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conectar MongoDB")
}
