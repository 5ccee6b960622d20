package credit

import (
	"strings"
	"time"
)

type Segment string

const (
	SegmentRetail    Segment = "retail"
	SegmentCorporate Segment = "corporate"
	SegmentSME       Segment = "sme"
)

type Customer struct {
	ID               int64     `json:"id" yaml:"id"`
	Name             string    `json:"name" yaml:"name"`
	Industry         string    `json:"industry" yaml:"industry"`
	Rating           Grade     `json:"rating" yaml:"rating"`
	FoundedYear      int       `json:"founded_year" yaml:"founded_year"`
	Creditworthiness float64   `json:"creditworthiness" yaml:"creditworthiness"` // 0..100
	Region           string    `json:"region" yaml:"region"`
	RiskClass        RiskClass `json:"risk_class" yaml:"risk_class"`
	Segment          Segment   `json:"segment" yaml:"segment"`
	Revenue          float64   `json:"revenue" yaml:"revenue"`
	Employees        int       `json:"employees" yaml:"employees"`
	EquityRatio      float64   `json:"equity_ratio" yaml:"equity_ratio"`
}

type ContractStatus string

const (
	StatusActive     ContractStatus = "active"
	StatusTerminated ContractStatus = "terminated"
	StatusClosed     ContractStatus = "closed"
	StatusDefaulted  ContractStatus = "defaulted"
)

type Contract struct {
	ID                 int64          `json:"id" yaml:"id"`
	CustomerID         int64          `json:"customer_id" yaml:"customer_id"`
	ProductType        string         `json:"product_type" yaml:"product_type"`
	OriginatedAt       time.Time      `json:"originated_at" yaml:"originated_at"`
	TermMonths         int            `json:"term_months" yaml:"term_months"`
	InterestRate       float64        `json:"interest_rate" yaml:"interest_rate"`
	Currency           string         `json:"currency" yaml:"currency"`
	CreditLimit        float64        `json:"credit_limit" yaml:"credit_limit"`
	UtilizedLimit      float64        `json:"utilized_limit" yaml:"utilized_limit"`
	OutstandingBalance *float64       `json:"outstanding_balance" yaml:"outstanding_balance"`
	CollateralValue    float64        `json:"collateral_value" yaml:"collateral_value"`
	CollateralType     string         `json:"collateral_type" yaml:"collateral_type"`
	BorrowerScore      int            `json:"borrower_score" yaml:"borrower_score"` // 1..1000
	Status             ContractStatus `json:"status" yaml:"status"`
	NextDueDate        *time.Time     `json:"next_due_date,omitempty" yaml:"next_due_date,omitempty"`
	AmortizationType   string         `json:"amortization_type" yaml:"amortization_type"`
	PD                 float64        `json:"pd" yaml:"pd"`
	LGD                float64        `json:"lgd" yaml:"lgd"`
	EAD                float64        `json:"ead" yaml:"ead"`
}

// Balance returns the outstanding balance and whether it is known.
func (c Contract) Balance() (float64, bool) {
	if c.OutstandingBalance == nil {
		return 0, false
	}
	return *c.OutstandingBalance, true
}

// OverLimit signals utilization above the credit limit. The values are left as stored.
func (c Contract) OverLimit() bool {
	return c.UtilizedLimit > c.CreditLimit
}

// Utilization is utilized/limit, 0 when there is no limit.
func (c Contract) Utilization() float64 {
	return Ratio(c.UtilizedLimit, c.CreditLimit)
}

// Exposure is the EAD, falling back to the outstanding balance when no EAD is recorded.
func (c Contract) Exposure() float64 {
	if c.EAD > 0 {
		return c.EAD
	}
	b, _ := c.Balance()
	return b
}

// RemainingMonths until maturity as of asOf, never less than 1.
func (c Contract) RemainingMonths(asOf time.Time) int {
	end := c.OriginatedAt.AddDate(0, c.TermMonths, 0)
	months := (end.Year()-asOf.Year())*12 + int(end.Month()-asOf.Month())
	if end.Day() < asOf.Day() {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}

type PaymentStatus string

const (
	PaymentOnTime    PaymentStatus = "on_time"
	PaymentDelayed   PaymentStatus = "delayed"
	PaymentDefaulted PaymentStatus = "defaulted"
	PaymentOpen      PaymentStatus = "open"
)

type Payment struct {
	ID           int64         `json:"id" yaml:"id"`
	ContractID   int64         `json:"contract_id" yaml:"contract_id"`
	DueDate      time.Time     `json:"due_date" yaml:"due_date"`
	PaidAt       *time.Time    `json:"paid_at,omitempty" yaml:"paid_at,omitempty"`
	AmountDue    float64       `json:"amount_due" yaml:"amount_due"`
	AmountPaid   float64       `json:"amount_paid" yaml:"amount_paid"`
	DaysLate     int           `json:"days_late" yaml:"days_late"`
	Status       PaymentStatus `json:"status" yaml:"status"`
	DunningLevel int           `json:"dunning_level" yaml:"dunning_level"`
	PaymentType  string        `json:"payment_type" yaml:"payment_type"`
}

// OpenAt reports whether the payment was still outstanding on asOf: never
// paid, paid only after asOf, or short-paid.
func (p Payment) OpenAt(asOf time.Time) bool {
	if p.PaidAt == nil || daysBetween(asOf, *p.PaidAt) > 0 {
		return true
	}
	return p.AmountPaid < p.AmountDue
}

// DaysLateAt recomputes days late as seen on asOf: paid-due once settled,
// asOf-due while open, 0 when not yet due. The stored DaysLate is not consulted.
func (p Payment) DaysLateAt(asOf time.Time) int {
	if daysBetween(asOf, p.DueDate) > 0 {
		return 0
	}
	end := asOf
	if !p.OpenAt(asOf) {
		end = *p.PaidAt
	}
	d := daysBetween(p.DueDate, end)
	if d < 0 {
		return 0
	}
	return d
}

func daysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}

type DefaultEvent struct {
	ID                 int64      `json:"id" yaml:"id"`
	ContractID         int64      `json:"contract_id" yaml:"contract_id"`
	CustomerID         int64      `json:"customer_id" yaml:"customer_id"`
	DefaultDate        time.Time  `json:"default_date" yaml:"default_date"`
	Reason             string     `json:"reason" yaml:"reason"`
	DefaultedAmount    float64    `json:"defaulted_amount" yaml:"defaulted_amount"`
	CollateralRealized float64    `json:"collateral_realized" yaml:"collateral_realized"`
	RecoveredAmount    float64    `json:"recovered_amount" yaml:"recovered_amount"`
	RecoveredAt        *time.Time `json:"recovered_at,omitempty" yaml:"recovered_at,omitempty"`
	WriteOffAmount     float64    `json:"write_off_amount" yaml:"write_off_amount"`
	WrittenOffAt       *time.Time `json:"written_off_at,omitempty" yaml:"written_off_at,omitempty"`
	LegalStatus        string     `json:"legal_status" yaml:"legal_status"`
}

// RecoveryRate is recovered/defaulted, 0 when nothing defaulted.
func (e DefaultEvent) RecoveryRate() float64 {
	return Ratio(e.RecoveredAmount, e.DefaultedAmount)
}

// Open means neither recovered nor written off and the legal process is not closed.
func (e DefaultEvent) Open() bool {
	return e.RecoveredAt == nil && e.WrittenOffAt == nil &&
		!strings.EqualFold(e.LegalStatus, "closed")
}

type EconomicIndicator struct {
	Date                time.Time `json:"date" yaml:"date"`
	Region              string    `json:"region" yaml:"region"`
	Industry            string    `json:"industry,omitempty" yaml:"industry,omitempty"` // empty = region-wide
	IndustryDefaultRate float64   `json:"industry_default_rate" yaml:"industry_default_rate"`
	BusinessCycleIndex  float64   `json:"business_cycle_index" yaml:"business_cycle_index"`
	UnemploymentRate    float64   `json:"unemployment_rate" yaml:"unemployment_rate"`
	PolicyRate          float64   `json:"policy_rate" yaml:"policy_rate"`
	Inflation           float64   `json:"inflation" yaml:"inflation"`
	GDPGrowth           float64   `json:"gdp_growth" yaml:"gdp_growth"`
	InsolvencyRate      float64   `json:"insolvency_rate" yaml:"insolvency_rate"`
	CreditGrowth        float64   `json:"credit_growth" yaml:"credit_growth"`
	Source              string    `json:"source" yaml:"source"`
}

type LimitType string

const (
	LimitCustomer LimitType = "customer"
	LimitIndustry LimitType = "industry"
	LimitRegion   LimitType = "region"
	LimitTotal    LimitType = "total"
	LimitProduct  LimitType = "product"
)

const (
	DefaultWarningPct  = 80.0
	DefaultCriticalPct = 95.0
)

type RiskLimit struct {
	ID             int64      `json:"id" yaml:"id"`
	Type           LimitType  `json:"type" yaml:"type"`
	Name           string     `json:"name" yaml:"name"`
	ReferenceID    int64      `json:"reference_id,omitempty" yaml:"reference_id,omitempty"`
	ReferenceValue string     `json:"reference_value,omitempty" yaml:"reference_value,omitempty"`
	Amount         float64    `json:"amount" yaml:"amount"`
	Utilization    float64    `json:"utilization" yaml:"utilization"`
	UtilizationPct float64    `json:"utilization_pct" yaml:"utilization_pct"`
	Breached       bool       `json:"breached" yaml:"breached"`
	BreachAmount   float64    `json:"breach_amount" yaml:"breach_amount"`
	WarningPct     float64    `json:"warning_pct" yaml:"warning_pct"`
	CriticalPct    float64    `json:"critical_pct" yaml:"critical_pct"`
	EscalationTo   string     `json:"escalation_to,omitempty" yaml:"escalation_to,omitempty"`
	EscalatedAt    *time.Time `json:"escalated_at,omitempty" yaml:"escalated_at,omitempty"`
	ValidFrom      *time.Time `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidTo        *time.Time `json:"valid_to,omitempty" yaml:"valid_to,omitempty"`
	ApprovedBy     string     `json:"approved_by,omitempty" yaml:"approved_by,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" yaml:"approved_at,omitempty"`
}

// WithUtilization returns a copy whose derived fields are computed from util.
func (l RiskLimit) WithUtilization(util float64) RiskLimit {
	l.Utilization = util
	l.UtilizationPct = l.UtilizationPercent()
	l.Breached = l.IsBreached()
	l.BreachAmount = 0
	if l.Breached {
		l.BreachAmount = util - l.Amount
	}
	return l
}

// UtilizationPercent is utilization/limit*100 rounded to 2 decimals, 0 when the limit is 0.
func (l RiskLimit) UtilizationPercent() float64 {
	if l.Amount == 0 {
		return 0
	}
	return Round2(l.Utilization / l.Amount * 100)
}

func (l RiskLimit) IsBreached() bool {
	return l.Utilization > l.Amount
}

// Thresholds returns the warning and critical percentages, defaulted when unset.
func (l RiskLimit) Thresholds() (warning, critical float64) {
	warning, critical = l.WarningPct, l.CriticalPct
	if warning <= 0 {
		warning = DefaultWarningPct
	}
	if critical <= 0 {
		critical = DefaultCriticalPct
	}
	return warning, critical
}

// ValidAt reports whether t falls inside the validity window. Open ends are unbounded.
func (l RiskLimit) ValidAt(t time.Time) bool {
	if l.ValidFrom != nil && t.Before(*l.ValidFrom) {
		return false
	}
	if l.ValidTo != nil && t.After(*l.ValidTo) {
		return false
	}
	return true
}

type RatingChange struct {
	ID         string    `json:"id" yaml:"id"`
	CustomerID int64     `json:"customer_id" yaml:"customer_id"`
	OldRating  Grade     `json:"old_rating" yaml:"old_rating"`
	NewRating  Grade     `json:"new_rating" yaml:"new_rating"`
	ChangedAt  time.Time `json:"changed_at" yaml:"changed_at"`
	Reason     string    `json:"reason" yaml:"reason"`
	Handler    string    `json:"handler" yaml:"handler"`
}

// Downgrade reports a move to a riskier grade on the ordinal scale.
func (r RatingChange) Downgrade() bool {
	return r.NewRating.RiskierThan(r.OldRating)
}

type Stage int

const (
	Stage1 Stage = 1
	Stage2 Stage = 2
	Stage3 Stage = 3
)

type Provision struct {
	ID          string    `json:"id" yaml:"id"`
	RunID       string    `json:"run_id" yaml:"run_id"`
	ContractID  int64     `json:"contract_id" yaml:"contract_id"`
	AsOf        time.Time `json:"as_of" yaml:"as_of"`
	Stage       Stage     `json:"stage" yaml:"stage"`
	ECL12m      float64   `json:"ecl_12m" yaml:"ecl_12m"`
	ECLLifetime float64   `json:"ecl_lifetime" yaml:"ecl_lifetime"`
	PD12m       float64   `json:"pd_12m" yaml:"pd_12m"`
	PDLifetime  float64   `json:"pd_lifetime" yaml:"pd_lifetime"`
	LGD         float64   `json:"lgd" yaml:"lgd"`
	EAD         float64   `json:"ead" yaml:"ead"`
	Amount      float64   `json:"amount" yaml:"amount"`
	PriorAmount *float64  `json:"prior_amount,omitempty" yaml:"prior_amount,omitempty"`
	Delta       float64   `json:"delta" yaml:"delta"`
}
