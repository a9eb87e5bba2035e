package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/castkeep/ledgergate/record"
)

// EffectKind distinguishes the record-level effects an operation can stage.
type EffectKind string

const (
	// EffectCreate inserts a new record; the address must be unoccupied.
	EffectCreate EffectKind = "create"
	// EffectUpdate rewrites the payload (and mutability) of an existing
	// record.
	EffectUpdate EffectKind = "update"
	// EffectClose zeroes the payload and reassigns the record to the
	// neutral controller.
	EffectClose EffectKind = "close"
)

// Effect is one staged record change. Record is required for create/update;
// close needs only the address.
type Effect struct {
	Kind    EffectKind
	Address record.Address
	Record  *record.ResourceRecord
}

// Apply writes the full effect set in a single transaction: either every
// effect commits or none do. seq stamps created/updated rows with the
// operation's logical clock position.
func (s *Store) Apply(ctx context.Context, effects []Effect, seq int64) error {
	return s.ApplyWithAudit(ctx, effects, seq, nil)
}

// ApplyWithAudit writes the effect set and the operation's audit row in the
// same transaction, so committed effects are never visible without their
// audit record. A nil audit applies effects only.
func (s *Store) ApplyWithAudit(ctx context.Context, effects []Effect, seq int64, audit *AuditRow) error {
	if len(effects) == 0 && audit == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback()

	for i, eff := range effects {
		switch eff.Kind {
		case EffectCreate:
			// INSERT without upsert: creating over an occupied address must
			// fail the whole transaction, not overwrite.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO records (address, controller, type_tag, payload, mutable, created_seq, updated_seq)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, eff.Record.Address.String(), string(eff.Record.Controller), eff.Record.TypeTag.String(),
				eff.Record.Payload, boolToInt(eff.Record.Mutable), seq, seq)
		case EffectUpdate:
			err = execOne(ctx, tx, `
				UPDATE records SET payload = ?, mutable = ?, updated_seq = ? WHERE address = ?
			`, eff.Record.Payload, boolToInt(eff.Record.Mutable), seq, eff.Record.Address.String())
		case EffectClose:
			err = execOne(ctx, tx, `
				UPDATE records SET payload = X'', controller = ?, mutable = 0, updated_seq = ? WHERE address = ?
			`, string(record.NeutralController), seq, eff.Address.String())
		default:
			err = fmt.Errorf("unknown effect kind %q", eff.Kind)
		}
		if err != nil {
			return fmt.Errorf("apply effect[%d] %s: %w", i, eff.Kind, err)
		}
	}

	if audit != nil {
		if _, err := tx.ExecContext(ctx, insertAuditSQL,
			audit.OpToken, audit.OpType, audit.Verdict, audit.ErrorKind, audit.Slot, audit.Seq); err != nil {
			return fmt.Errorf("append audit %s: %w", audit.OpToken, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

const insertAuditSQL = `
	INSERT INTO operations (op_token, op_type, verdict, error_kind, slot, seq)
	VALUES (?, ?, ?, ?, ?, ?)
`

// AppendAudit records the verdict of one evaluated operation. Rejections use
// it directly; accepted operations write their row through ApplyWithAudit.
func (s *Store) AppendAudit(ctx context.Context, row AuditRow) error {
	_, err := s.db.ExecContext(ctx, insertAuditSQL,
		row.OpToken, row.OpType, row.Verdict, row.ErrorKind, row.Slot, row.Seq)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", row.OpToken, err)
	}
	return nil
}

func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", n)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTypeTag(s string) (record.TypeTag, error) {
	var tag record.TypeTag
	raw, err := hex.DecodeString(s)
	if err != nil {
		return tag, fmt.Errorf("parse type tag: %w", err)
	}
	if len(raw) != record.TypeTagSize {
		return tag, fmt.Errorf("parse type tag: got %d bytes, want %d", len(raw), record.TypeTagSize)
	}
	copy(tag[:], raw)
	return tag, nil
}
