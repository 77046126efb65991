package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/hotel-pms-core/internal/model"
)

// AuditRepo appends to audit_logs.  Entries written in one unit share a
// correlation id.
type AuditRepo struct {
	db *sqlx.DB
}

func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) InsertTx(ctx context.Context, tx *sqlx.Tx, correlation uuid.UUID, e model.AuditEntry) error {
	var meta []byte
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return fmt.Errorf("encode audit meta: %w", err)
		}
		meta = b
	}
	const q = `INSERT INTO audit_logs
		(correlation_id, actor_id, action, entity_type, entity_id, hotel_id, description, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, correlation.String(), e.ActorID, e.Action, e.EntityType, e.EntityID, e.HotelID, e.Description, meta); err != nil {
		return fmt.Errorf("insert audit log: %w", mapErr(err, "audit log", 0))
	}
	return nil
}

type txAudit struct {
	repo        *AuditRepo
	tx          *sqlx.Tx
	correlation uuid.UUID
}

func (s txAudit) Log(ctx context.Context, e model.AuditEntry) error {
	return s.repo.InsertTx(ctx, s.tx, s.correlation, e)
}
