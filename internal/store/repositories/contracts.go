package repositories

import (
	"context"
	"database/sql"

	"github.com/deskflow/kernel/internal/logging"
	"github.com/deskflow/kernel/internal/store"
)

// ContractsRepo stores the opaque domain entities (contracts, payment
// stages) that worker business logic owns. The kernel imposes no
// invariants on Data's contents.
type ContractsRepo struct {
	db *sql.DB
}

func (r *ContractsRepo) GetByID(ctx context.Context, id int64) (*store.Contract, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, contract_number, contract_name, data FROM contracts WHERE id = ?`, id)
	var c store.Contract
	var name, data sql.NullString
	if err := row.Scan(&c.ID, &c.ContractNumber, &name, &data); err != nil {
		return nil, err
	}
	c.ContractName = name.String
	c.Data = data.String
	return &c, nil
}

func (r *ContractsRepo) Query(ctx context.Context, limit int) []store.Contract {
	rows, err := r.db.QueryContext(ctx, `SELECT id, contract_number, contract_name, data FROM contracts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		logging.Error("contracts: query failed: %v", err)
		return []store.Contract{}
	}
	defer rows.Close()

	var out []store.Contract
	for rows.Next() {
		var c store.Contract
		var name, data sql.NullString
		if err := rows.Scan(&c.ID, &c.ContractNumber, &name, &data); err != nil {
			logging.Error("contracts: row scan failed: %v", err)
			continue
		}
		c.ContractName = name.String
		c.Data = data.String
		out = append(out, c)
	}
	if out == nil {
		out = []store.Contract{}
	}
	return out
}
