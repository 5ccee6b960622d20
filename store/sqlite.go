package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/id"
)

// DataAccess is everything the engines and the CLI read from or write to
// persistent storage.
type DataAccess interface {
	credit.SnapshotSource

	ListCustomers(ctx context.Context) ([]credit.Customer, error)
	GetCustomer(ctx context.Context, customerID int64) (credit.Customer, error)
	ListContractsByCustomer(ctx context.Context, customerID int64) ([]credit.Contract, error)
	ListPayments(ctx context.Context, contractID int64) ([]credit.Payment, error)
	ListProvisions(ctx context.Context, contractID int64) ([]credit.Provision, error)
	ListRatingChangesSince(ctx context.Context, since time.Time) ([]credit.RatingChange, error)

	AppendProvisions(ctx context.Context, ps []credit.Provision) error
	AppendRatingChange(ctx context.Context, rc credit.RatingChange) error
	UpdateRiskLimitUtilization(ctx context.Context, limits []credit.RiskLimit) error
	ChangeRating(ctx context.Context, customerID int64, to credit.Grade, reason, handler string, at time.Time) (credit.RatingChange, error)

	Close() error
}

type SQLite struct {
	db *sql.DB
}

var _ DataAccess = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps append transactions serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Snapshot reads every table inside one transaction so the engines see a
// single consistent point in time.
func (s *SQLite) Snapshot(ctx context.Context) (*credit.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snap := &credit.Snapshot{TakenAt: time.Now().UTC()}

	if snap.Customers, err = listCustomers(ctx, tx, ""); err != nil {
		return nil, fmt.Errorf("customers: %w", err)
	}
	if snap.Contracts, err = listContracts(ctx, tx, ""); err != nil {
		return nil, fmt.Errorf("contracts: %w", err)
	}
	if snap.Payments, err = listPayments(ctx, tx, ""); err != nil {
		return nil, fmt.Errorf("payments: %w", err)
	}
	if snap.Defaults, err = listDefaults(ctx, tx); err != nil {
		return nil, fmt.Errorf("default events: %w", err)
	}
	if snap.Indicators, err = listIndicators(ctx, tx); err != nil {
		return nil, fmt.Errorf("economic indicators: %w", err)
	}
	if snap.Limits, err = listLimits(ctx, tx); err != nil {
		return nil, fmt.Errorf("risk limits: %w", err)
	}
	if snap.RatingChanges, err = listRatingChanges(ctx, tx, ""); err != nil {
		return nil, fmt.Errorf("rating changes: %w", err)
	}
	if snap.Provisions, err = listProvisions(ctx, tx, ""); err != nil {
		return nil, fmt.Errorf("provisions: %w", err)
	}

	return snap, nil
}

// AppendProvisions writes all rows or none.
func (s *SQLite) AppendProvisions(ctx context.Context, ps []credit.Provision) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range ps {
			if err := insertProvision(ctx, tx, p); err != nil {
				return fmt.Errorf("provision for contract %d as of %s: %w",
					p.ContractID, p.AsOf.Format(time.DateOnly), err)
			}
		}
		return nil
	})
}

func (s *SQLite) AppendRatingChange(ctx context.Context, rc credit.RatingChange) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertRatingChange(ctx, tx, rc)
	})
}

// UpdateRiskLimitUtilization stores recomputed derived fields. Thresholds,
// amounts and approvals are left untouched.
func (s *SQLite) UpdateRiskLimitUtilization(ctx context.Context, limits []credit.RiskLimit) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, l := range limits {
			res, err := tx.ExecContext(ctx, `
				UPDATE risk_limits
				SET utilization = ?, utilization_pct = ?, breached = ?, breach_amount = ?
				WHERE id = ?`,
				l.Utilization, l.UtilizationPct, l.Breached, l.BreachAmount, l.ID,
			)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("risk limit %d not found", l.ID)
			}
		}
		return nil
	})
}

// ChangeRating updates the customer's grade and appends the history row in
// one transaction.
func (s *SQLite) ChangeRating(ctx context.Context, customerID int64, to credit.Grade, reason, handler string, at time.Time) (credit.RatingChange, error) {
	if !to.Valid() {
		return credit.RatingChange{}, credit.InvalidInput("unknown rating grade %q", to)
	}

	var rc credit.RatingChange
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var old string
		err := tx.QueryRowContext(ctx, `SELECT rating FROM customers WHERE id = ?`, customerID).Scan(&old)
		if err == sql.ErrNoRows {
			return fmt.Errorf("customer %d not found", customerID)
		}
		if err != nil {
			return err
		}
		if credit.Grade(old) == to {
			return credit.InvalidInput("customer %d is already rated %s", customerID, to)
		}

		if _, err := tx.ExecContext(ctx, `UPDATE customers SET rating = ? WHERE id = ?`, string(to), customerID); err != nil {
			return err
		}

		rc = credit.RatingChange{
			ID:         id.At(at),
			CustomerID: customerID,
			OldRating:  credit.Grade(old),
			NewRating:  to,
			ChangedAt:  at.UTC(),
			Reason:     reason,
			Handler:    handler,
		}
		return insertRatingChange(ctx, tx, rc)
	})
	if err != nil {
		return credit.RatingChange{}, err
	}
	return rc, nil
}

// Seed bulk-loads a snapshot in one transaction. Rows missing an id get one.
func (s *SQLite) Seed(ctx context.Context, snap *credit.Snapshot) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range snap.Customers {
			if err := insertCustomer(ctx, tx, c); err != nil {
				return fmt.Errorf("customer %d: %w", c.ID, err)
			}
		}
		for _, c := range snap.Contracts {
			if err := insertContract(ctx, tx, c); err != nil {
				return fmt.Errorf("contract %d: %w", c.ID, err)
			}
		}
		for _, p := range snap.Payments {
			if err := insertPayment(ctx, tx, p); err != nil {
				return fmt.Errorf("payment %d: %w", p.ID, err)
			}
		}
		for _, e := range snap.Defaults {
			if err := insertDefault(ctx, tx, e); err != nil {
				return fmt.Errorf("default event %d: %w", e.ID, err)
			}
		}
		for _, ind := range snap.Indicators {
			if err := insertIndicator(ctx, tx, ind); err != nil {
				return fmt.Errorf("indicator %s/%s/%s: %w",
					ind.Date.Format(time.DateOnly), ind.Region, ind.Industry, err)
			}
		}
		for _, l := range snap.Limits {
			if err := insertLimit(ctx, tx, l); err != nil {
				return fmt.Errorf("risk limit %d: %w", l.ID, err)
			}
		}
		for _, rc := range snap.RatingChanges {
			if rc.ID == "" {
				rc.ID = id.At(rc.ChangedAt)
			}
			if err := insertRatingChange(ctx, tx, rc); err != nil {
				return fmt.Errorf("rating change %s: %w", rc.ID, err)
			}
		}
		for _, p := range snap.Provisions {
			if err := insertProvision(ctx, tx, p); err != nil {
				return fmt.Errorf("provision for contract %d: %w", p.ContractID, err)
			}
		}
		return nil
	})
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
