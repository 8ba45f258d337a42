// Package mongodb auditoría de firma en MongoDB (AUDIT_BACKEND=mongo).
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jhoicas/teif-firma/internal/domain/entity"
	"github.com/jhoicas/teif-firma/internal/domain/repository"
)

var _ repository.SignatureAuditRepository = (*AuditStore)(nil)

// Config conexión a MongoDB.
type Config struct {
	URI      string
	Database string
}

// AuditStore colección append-only signature_audit.
type AuditStore struct {
	client  *mongo.Client
	entries *mongo.Collection
}

// auditDocument forma persistida de entity.SignatureAuditEntry.
type auditDocument struct {
	ID              string    `bson:"_id"`
	UserID          string    `bson:"user_id"`
	Action          string    `bson:"action"`
	InvoiceID       string    `bson:"invoice_id,omitempty"`
	Status          string    `bson:"status"`
	ErrorCode       string    `bson:"error_code,omitempty"`
	ErrorMessage    string    `bson:"error_message,omitempty"`
	CertificateUsed string    `bson:"certificate_used,omitempty"`
	IPAddress       string    `bson:"ip_address,omitempty"`
	UserAgent       string    `bson:"user_agent,omitempty"`
	CreatedAt       time.Time `bson:"created_at"`
}

// NewAuditStore conecta, verifica con ping y crea los índices.
func NewAuditStore(ctx context.Context, cfg Config) (*AuditStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("conectar MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	s := &AuditStore{
		client:  client,
		entries: client.Database(cfg.Database).Collection("signature_audit"),
	}
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("crear índices: %w", err)
	}
	return s, nil
}

func (s *AuditStore) createIndexes(ctx context.Context) error {
	_, err := s.entries.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "invoice_id", Value: 1}, {Key: "action", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	return err
}

// Close desconecta el cliente.
func (s *AuditStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Insert agrega una entrada.
func (s *AuditStore) Insert(ctx context.Context, e *entity.SignatureAuditEntry) error {
	if _, err := s.entries.InsertOne(ctx, toDocument(e)); err != nil {
		return fmt.Errorf("insertar auditoría: %w", err)
	}
	return nil
}

// ListByUser página más reciente primero y total del filtro.
func (s *AuditStore) ListByUser(ctx context.Context, f entity.AuditFilter) ([]*entity.SignatureAuditEntry, int, error) {
	query := userFilter(f)
	total, err := s.entries.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("contar auditoría: %w", err)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	list, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return list, int(total), nil
}

// ListSignByInvoice intentos de firma de la factura en orden cronológico.
func (s *AuditStore) ListSignByInvoice(ctx context.Context, invoiceID string) ([]*entity.SignatureAuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return s.find(ctx, bson.M{"invoice_id": invoiceID, "action": entity.AuditActionSign}, opts)
}

// ListFailuresSince fallos del usuario desde since.
func (s *AuditStore) ListFailuresSince(ctx context.Context, userID string, since time.Time, limit int) ([]*entity.SignatureAuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	return s.find(ctx, bson.M{
		"user_id":    userID,
		"status":     entity.AuditStatusFailure,
		"created_at": bson.M{"$gte": since},
	}, opts)
}

func (s *AuditStore) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*entity.SignatureAuditEntry, error) {
	cursor, err := s.entries.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("buscar auditoría: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decodificar auditoría: %w", err)
	}
	out := make([]*entity.SignatureAuditEntry, 0, len(docs))
	for i := range docs {
		out = append(out, fromDocument(&docs[i]))
	}
	return out, nil
}

func userFilter(f entity.AuditFilter) bson.M {
	q := bson.M{"user_id": f.UserID}
	if f.Action != "" {
		q["action"] = f.Action
	}
	return q
}

func toDocument(e *entity.SignatureAuditEntry) auditDocument {
	return auditDocument{
		ID:              e.ID,
		UserID:          e.UserID,
		Action:          e.Action,
		InvoiceID:       e.InvoiceID,
		Status:          e.Status,
		ErrorCode:       e.ErrorCode,
		ErrorMessage:    e.ErrorMessage,
		CertificateUsed: e.CertificateUsed,
		IPAddress:       e.IPAddress,
		UserAgent:       e.UserAgent,
		CreatedAt:       e.CreatedAt,
	}
}

func fromDocument(d *auditDocument) *entity.SignatureAuditEntry {
	return &entity.SignatureAuditEntry{
		ID:              d.ID,
		UserID:          d.UserID,
		Action:          d.Action,
		InvoiceID:       d.InvoiceID,
		Status:          d.Status,
		ErrorCode:       d.ErrorCode,
		ErrorMessage:    d.ErrorMessage,
		CertificateUsed: d.CertificateUsed,
		IPAddress:       d.IPAddress,
		UserAgent:       d.UserAgent,
		CreatedAt:       d.CreatedAt,
	}
}
