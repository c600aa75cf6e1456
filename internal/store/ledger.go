package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/vedeploy/internal/canonical"
)

// ErrUnitNotFound is returned when no simulated unit lives at an address.
var ErrUnitNotFound = errors.New("unit not found")

// UnitRecord is a simulated unit. Storage values are strings or int64.
type UnitRecord struct {
	Address  string         `json:"address"`
	Seq      int64          `json:"seq"`
	Kind     string         `json:"kind"`
	Deployer string         `json:"deployer"`
	Nonce    int64          `json:"nonce"`
	Storage  map[string]any `json:"storage"`
}

// CallRecord is an entry point invocation against a simulated unit.
type CallRecord struct {
	ID         int64  `json:"id"`
	Address    string `json:"address"`
	Entrypoint string `json:"entrypoint"`
	Args       []any  `json:"args"`
	Caller     string `json:"caller"`
}

// AddressFunc derives a unit address from the deployer's next nonce.
type AddressFunc func(nonce int64) (string, error)

// CreateUnit allocates the deployer's next nonce, derives the unit address
// and inserts the unit, all in one transaction. Nonces start at 0.
func (s *Store) CreateUnit(ctx context.Context, deployer, kind string, storage map[string]any, derive AddressFunc) (UnitRecord, error) {
	storageJSON, err := canonical.Marshal(storage)
	if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: marshal storage: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var nonce int64
	err = tx.QueryRowContext(ctx, `SELECT nonce FROM deployers WHERE address = ?`, deployer).Scan(&nonce)
	if errors.Is(err, sql.ErrNoRows) {
		nonce = 0
	} else if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: read nonce: %w", err)
	}

	address, err := derive(nonce)
	if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: derive address: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM units`).Scan(&seq); err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO units (address, seq, kind, deployer, nonce, storage)
		VALUES (?, ?, ?, ?, ?, ?)
	`, address, seq, kind, deployer, nonce, string(storageJSON))
	if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: insert: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployers (address, nonce) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET nonce = excluded.nonce
	`, deployer, nonce+1)
	if err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: bump nonce: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return UnitRecord{}, fmt.Errorf("create unit: commit: %w", err)
	}

	return UnitRecord{
		Address:  address,
		Seq:      seq,
		Kind:     kind,
		Deployer: deployer,
		Nonce:    nonce,
		Storage:  storage,
	}, nil
}

// GetUnit returns the unit at address.
func (s *Store) GetUnit(ctx context.Context, address string) (UnitRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, seq, kind, deployer, nonce, storage
		FROM units WHERE address = ? COLLATE NOCASE
	`, address)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UnitRecord{}, fmt.Errorf("get unit %s: %w", address, ErrUnitNotFound)
	}
	if err != nil {
		return UnitRecord{}, fmt.Errorf("get unit %s: %w", address, err)
	}
	return u, nil
}

// ListUnits returns every simulated unit in creation order.
func (s *Store) ListUnits(ctx context.Context) ([]UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, seq, kind, deployer, nonce, storage
		FROM units ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	units := []UnitRecord{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

// CountUnits returns the number of simulated units of a kind. An empty kind
// counts all units.
func (s *Store) CountUnits(ctx context.Context, kind string) (int, error) {
	query := `SELECT COUNT(*) FROM units`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

// InsertCall records an entry point invocation.
func (s *Store) InsertCall(ctx context.Context, call CallRecord) (int64, error) {
	argsJSON, err := canonical.Marshal(call.Args)
	if err != nil {
		return 0, fmt.Errorf("insert call: marshal args: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO unit_calls (address, entrypoint, args, caller)
		VALUES (?, ?, ?, ?)
	`, call.Address, call.Entrypoint, string(argsJSON), call.Caller)
	if err != nil {
		return 0, fmt.Errorf("insert call: %w", err)
	}
	return res.LastInsertId()
}

// ListCalls returns the calls made against a unit in insertion order.
func (s *Store) ListCalls(ctx context.Context, address string) ([]CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, entrypoint, args, caller
		FROM unit_calls WHERE address = ? ORDER BY id ASC
	`, address)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []CallRecord{}
	for rows.Next() {
		var c CallRecord
		var argsJSON string
		if err := rows.Scan(&c.ID, &c.Address, &c.Entrypoint, &argsJSON, &c.Caller); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		var raw any
		if err := decodeJSON(argsJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode call args: %w", err)
		}
		args, _ := normalize(raw).([]any)
		c.Args = args
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

func scanUnit(row scanner) (UnitRecord, error) {
	var u UnitRecord
	var storageJSON string
	if err := row.Scan(&u.Address, &u.Seq, &u.Kind, &u.Deployer, &u.Nonce, &storageJSON); err != nil {
		return UnitRecord{}, err
	}
	var raw map[string]any
	if err := decodeJSON(storageJSON, &raw); err != nil {
		return UnitRecord{}, fmt.Errorf("decode storage: %w", err)
	}
	u.Storage = make(map[string]any, len(raw))
	for k, v := range raw {
		u.Storage[k] = normalize(v)
	}
	return u, nil
}

// decodeJSON decodes with UseNumber so large integers survive.
func decodeJSON(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	return dec.Decode(v)
}

// normalize converts json.Number to int64 (falling back to its string form).
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		return val.String()
	case []any:
		for i := range val {
			val[i] = normalize(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = normalize(val[k])
		}
		return val
	default:
		return v
	}
}
