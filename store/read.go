package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/castkeep/ledgergate/record"
)

// Snapshot reads the records at the given addresses as of now. Addresses
// with no record map to a nil entry: "does not exist" is a meaningful state
// (creation constraints require it).
//
// The returned records are owned by the caller; evaluation works on this
// snapshot only and never re-reads mid-operation.
func (s *Store) Snapshot(ctx context.Context, addresses []record.Address) (map[record.Address]*record.ResourceRecord, error) {
	snap := make(map[record.Address]*record.ResourceRecord, len(addresses))
	for _, a := range addresses {
		if _, done := snap[a]; done {
			continue
		}
		rec, err := s.GetRecord(ctx, a)
		if err != nil {
			return nil, err
		}
		snap[a] = rec
	}
	return snap, nil
}

// GetRecord reads a single record, or nil if no record exists at the
// address.
func (s *Store) GetRecord(ctx context.Context, address record.Address) (*record.ResourceRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT controller, type_tag, payload, mutable
		FROM records WHERE address = ?
	`, address.String())

	var (
		controller string
		tagHex     string
		payload    []byte
		mutable    int
	)
	if err := row.Scan(&controller, &tagHex, &payload, &mutable); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record %s: %w", address, err)
	}

	tag, err := parseTypeTag(tagHex)
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", address, err)
	}

	return &record.ResourceRecord{
		Address:    address,
		Controller: record.ComponentID(controller),
		TypeTag:    tag,
		Payload:    payload,
		Mutable:    mutable != 0,
	}, nil
}

// AuditRow is one entry of the operation audit log.
type AuditRow struct {
	OpToken   string
	OpType    string
	Verdict   string
	ErrorKind string
	Slot      int
	Seq       int64
}

// ListAudit returns the audit log ordered by logical seq then token.
// The explicit ORDER BY keeps results identical across replays.
func (s *Store) ListAudit(ctx context.Context) ([]AuditRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT op_token, op_type, verdict, error_kind, slot, seq
		FROM operations
		ORDER BY seq ASC, op_token ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var r AuditRow
		if err := rows.Scan(&r.OpToken, &r.OpType, &r.Verdict, &r.ErrorKind, &r.Slot, &r.Seq); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
