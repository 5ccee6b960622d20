package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/id"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) ListCustomers(ctx context.Context) ([]credit.Customer, error) {
	return listCustomers(ctx, s.db, "")
}

// GetCustomer returns a single customer by id.
func (s *SQLite) GetCustomer(ctx context.Context, customerID int64) (credit.Customer, error) {
	list, err := listCustomers(ctx, s.db, "WHERE id = ?", customerID)
	if err != nil {
		return credit.Customer{}, err
	}
	if len(list) == 0 {
		return credit.Customer{}, fmt.Errorf("customer %d not found", customerID)
	}
	return list[0], nil
}

func (s *SQLite) ListContractsByCustomer(ctx context.Context, customerID int64) ([]credit.Contract, error) {
	return listContracts(ctx, s.db, "WHERE customer_id = ?", customerID)
}

// ListPayments returns a contract's payments ordered by due date.
func (s *SQLite) ListPayments(ctx context.Context, contractID int64) ([]credit.Payment, error) {
	return listPayments(ctx, s.db, "WHERE contract_id = ?", contractID)
}

// ListProvisions returns a contract's provision history, oldest first.
func (s *SQLite) ListProvisions(ctx context.Context, contractID int64) ([]credit.Provision, error) {
	return listProvisions(ctx, s.db, "WHERE contract_id = ?", contractID)
}

// ListRatingChangesSince returns changes with changed_at >= since, oldest first.
func (s *SQLite) ListRatingChangesSince(ctx context.Context, since time.Time) ([]credit.RatingChange, error) {
	return listRatingChanges(ctx, s.db, "WHERE changed_at >= ?", since.UTC())
}

const customerCols = `id, name, industry, rating, founded_year, creditworthiness, region,
	risk_class, segment, revenue, employees, equity_ratio`

func listCustomers(ctx context.Context, q querier, where string, args ...any) ([]credit.Customer, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+customerCols+` FROM customers `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.Customer
	for rows.Next() {
		var (
			c                          credit.Customer
			rating, riskClass, segment string
		)
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Industry,
			&rating,
			&c.FoundedYear,
			&c.Creditworthiness,
			&c.Region,
			&riskClass,
			&segment,
			&c.Revenue,
			&c.Employees,
			&c.EquityRatio,
		); err != nil {
			return nil, err
		}
		c.Rating = credit.Grade(rating)
		c.RiskClass = credit.RiskClass(riskClass)
		c.Segment = credit.Segment(segment)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertCustomer(ctx context.Context, q querier, c credit.Customer) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO customers (`+customerCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Industry, string(c.Rating), c.FoundedYear, c.Creditworthiness, c.Region,
		string(c.RiskClass), string(c.Segment), c.Revenue, c.Employees, c.EquityRatio,
	)
	return err
}

const contractCols = `id, customer_id, product_type, originated_at, term_months, interest_rate,
	currency, credit_limit, utilized_limit, outstanding_balance, collateral_value, collateral_type,
	borrower_score, status, next_due_date, amortization_type, pd, lgd, ead`

func scanContract(r scanner) (credit.Contract, error) {
	var (
		c       credit.Contract
		balance sql.NullFloat64
		nextDue sql.NullTime
		status  string
	)
	err := r.Scan(
		&c.ID,
		&c.CustomerID,
		&c.ProductType,
		&c.OriginatedAt,
		&c.TermMonths,
		&c.InterestRate,
		&c.Currency,
		&c.CreditLimit,
		&c.UtilizedLimit,
		&balance,
		&c.CollateralValue,
		&c.CollateralType,
		&c.BorrowerScore,
		&status,
		&nextDue,
		&c.AmortizationType,
		&c.PD,
		&c.LGD,
		&c.EAD,
	)
	if err != nil {
		return c, err
	}
	c.Status = credit.ContractStatus(status)
	if balance.Valid {
		b := balance.Float64
		c.OutstandingBalance = &b
	}
	c.NextDueDate = timePtr(nextDue)
	return c, nil
}

func listContracts(ctx context.Context, q querier, where string, args ...any) ([]credit.Contract, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+contractCols+` FROM contracts `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertContract(ctx context.Context, q querier, c credit.Contract) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO contracts (`+contractCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.CustomerID, c.ProductType, c.OriginatedAt.UTC(), c.TermMonths, c.InterestRate,
		c.Currency, c.CreditLimit, c.UtilizedLimit, c.OutstandingBalance, c.CollateralValue, c.CollateralType,
		c.BorrowerScore, string(c.Status), utcPtr(c.NextDueDate), c.AmortizationType, c.PD, c.LGD, c.EAD,
	)
	return err
}

const paymentCols = `id, contract_id, due_date, paid_at, amount_due, amount_paid, days_late,
	status, dunning_level, payment_type`

func listPayments(ctx context.Context, q querier, where string, args ...any) ([]credit.Payment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+paymentCols+` FROM payments `+where+` ORDER BY contract_id, due_date, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.Payment
	for rows.Next() {
		var (
			p      credit.Payment
			paidAt sql.NullTime
			status string
		)
		if err := rows.Scan(
			&p.ID,
			&p.ContractID,
			&p.DueDate,
			&paidAt,
			&p.AmountDue,
			&p.AmountPaid,
			&p.DaysLate,
			&status,
			&p.DunningLevel,
			&p.PaymentType,
		); err != nil {
			return nil, err
		}
		p.PaidAt = timePtr(paidAt)
		p.Status = credit.PaymentStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertPayment(ctx context.Context, q querier, p credit.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ContractID, p.DueDate.UTC(), utcPtr(p.PaidAt), p.AmountDue, p.AmountPaid, p.DaysLate,
		string(p.Status), p.DunningLevel, p.PaymentType,
	)
	return err
}

const defaultCols = `id, contract_id, customer_id, default_date, reason, defaulted_amount,
	collateral_realized, recovered_amount, recovered_at, write_off_amount, written_off_at, legal_status`

func listDefaults(ctx context.Context, q querier) ([]credit.DefaultEvent, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+defaultCols+` FROM default_events ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.DefaultEvent
	for rows.Next() {
		var (
			e                      credit.DefaultEvent
			recoveredAt, writtenAt sql.NullTime
		)
		if err := rows.Scan(
			&e.ID,
			&e.ContractID,
			&e.CustomerID,
			&e.DefaultDate,
			&e.Reason,
			&e.DefaultedAmount,
			&e.CollateralRealized,
			&e.RecoveredAmount,
			&recoveredAt,
			&e.WriteOffAmount,
			&writtenAt,
			&e.LegalStatus,
		); err != nil {
			return nil, err
		}
		e.RecoveredAt = timePtr(recoveredAt)
		e.WrittenOffAt = timePtr(writtenAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertDefault(ctx context.Context, q querier, e credit.DefaultEvent) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO default_events (`+defaultCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ContractID, e.CustomerID, e.DefaultDate.UTC(), e.Reason, e.DefaultedAmount,
		e.CollateralRealized, e.RecoveredAmount, utcPtr(e.RecoveredAt), e.WriteOffAmount, utcPtr(e.WrittenOffAt), e.LegalStatus,
	)
	return err
}

const indicatorCols = `date, region, industry, industry_default_rate, business_cycle_index,
	unemployment_rate, policy_rate, inflation, gdp_growth, insolvency_rate, credit_growth, source`

func listIndicators(ctx context.Context, q querier) ([]credit.EconomicIndicator, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+indicatorCols+` FROM economic_indicators ORDER BY date, region, industry`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.EconomicIndicator
	for rows.Next() {
		var ind credit.EconomicIndicator
		if err := rows.Scan(
			&ind.Date,
			&ind.Region,
			&ind.Industry,
			&ind.IndustryDefaultRate,
			&ind.BusinessCycleIndex,
			&ind.UnemploymentRate,
			&ind.PolicyRate,
			&ind.Inflation,
			&ind.GDPGrowth,
			&ind.InsolvencyRate,
			&ind.CreditGrowth,
			&ind.Source,
		); err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertIndicator(ctx context.Context, q querier, ind credit.EconomicIndicator) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO economic_indicators (`+indicatorCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ind.Date.UTC(), ind.Region, ind.Industry, ind.IndustryDefaultRate, ind.BusinessCycleIndex,
		ind.UnemploymentRate, ind.PolicyRate, ind.Inflation, ind.GDPGrowth, ind.InsolvencyRate, ind.CreditGrowth, ind.Source,
	)
	return err
}

const limitCols = `id, type, name, reference_id, reference_value, amount, utilization,
	utilization_pct, breached, breach_amount, warning_pct, critical_pct, escalation_to,
	escalated_at, valid_from, valid_to, approved_by, approved_at`

func listLimits(ctx context.Context, q querier) ([]credit.RiskLimit, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+limitCols+` FROM risk_limits ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.RiskLimit
	for rows.Next() {
		var (
			l                                   credit.RiskLimit
			typ                                 string
			escalated, from, to, approvedAtNull sql.NullTime
		)
		if err := rows.Scan(
			&l.ID,
			&typ,
			&l.Name,
			&l.ReferenceID,
			&l.ReferenceValue,
			&l.Amount,
			&l.Utilization,
			&l.UtilizationPct,
			&l.Breached,
			&l.BreachAmount,
			&l.WarningPct,
			&l.CriticalPct,
			&l.EscalationTo,
			&escalated,
			&from,
			&to,
			&l.ApprovedBy,
			&approvedAtNull,
		); err != nil {
			return nil, err
		}
		l.Type = credit.LimitType(typ)
		l.EscalatedAt = timePtr(escalated)
		l.ValidFrom = timePtr(from)
		l.ValidTo = timePtr(to)
		l.ApprovedAt = timePtr(approvedAtNull)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertLimit(ctx context.Context, q querier, l credit.RiskLimit) error {
	w, c := l.Thresholds()
	_, err := q.ExecContext(ctx, `
		INSERT INTO risk_limits (`+limitCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Type), l.Name, l.ReferenceID, l.ReferenceValue, l.Amount, l.Utilization,
		l.UtilizationPct, l.Breached, l.BreachAmount, w, c, l.EscalationTo,
		utcPtr(l.EscalatedAt), utcPtr(l.ValidFrom), utcPtr(l.ValidTo), l.ApprovedBy, utcPtr(l.ApprovedAt),
	)
	return err
}

const ratingChangeCols = `id, customer_id, old_rating, new_rating, changed_at, reason, handler`

func listRatingChanges(ctx context.Context, q querier, where string, args ...any) ([]credit.RatingChange, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+ratingChangeCols+` FROM rating_changes `+where+` ORDER BY changed_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.RatingChange
	for rows.Next() {
		var (
			rc       credit.RatingChange
			from, to string
		)
		if err := rows.Scan(
			&rc.ID,
			&rc.CustomerID,
			&from,
			&to,
			&rc.ChangedAt,
			&rc.Reason,
			&rc.Handler,
		); err != nil {
			return nil, err
		}
		rc.OldRating = credit.Grade(from)
		rc.NewRating = credit.Grade(to)
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertRatingChange(ctx context.Context, q querier, rc credit.RatingChange) error {
	if rc.ID == "" {
		rc.ID = id.At(rc.ChangedAt)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO rating_changes (`+ratingChangeCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.CustomerID, string(rc.OldRating), string(rc.NewRating), rc.ChangedAt.UTC(), rc.Reason, rc.Handler,
	)
	return err
}

const provisionCols = `id, run_id, contract_id, as_of, stage, ecl_12m, ecl_lifetime, pd_12m,
	pd_lifetime, lgd, ead, amount, prior_amount, delta`

func listProvisions(ctx context.Context, q querier, where string, args ...any) ([]credit.Provision, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+provisionCols+` FROM provisions `+where+` ORDER BY contract_id, as_of`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []credit.Provision
	for rows.Next() {
		var (
			p     credit.Provision
			prior sql.NullFloat64
		)
		if err := rows.Scan(
			&p.ID,
			&p.RunID,
			&p.ContractID,
			&p.AsOf,
			&p.Stage,
			&p.ECL12m,
			&p.ECLLifetime,
			&p.PD12m,
			&p.PDLifetime,
			&p.LGD,
			&p.EAD,
			&p.Amount,
			&prior,
			&p.Delta,
		); err != nil {
			return nil, err
		}
		if prior.Valid {
			v := prior.Float64
			p.PriorAmount = &v
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func insertProvision(ctx context.Context, q querier, p credit.Provision) error {
	if p.ID == "" {
		p.ID = id.At(p.AsOf)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO provisions (`+provisionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RunID, p.ContractID, p.AsOf.UTC(), int(p.Stage), p.ECL12m, p.ECLLifetime, p.PD12m,
		p.PDLifetime, p.LGD, p.EAD, p.Amount, p.PriorAmount, p.Delta,
	)
	return err
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
