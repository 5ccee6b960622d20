// Package analytics aggregates exposure, rating mix and portfolio quality.
package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/logger"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type Analyzer struct {
	cfg *config.Config
	log zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, log: logger.Component(log, "analytics")}
}

// Summary is computed fresh per call and never cached.
type Summary struct {
	AsOf time.Time `json:"as_of"`

	Contracts       int `json:"contracts"`
	ActiveContracts int `json:"active_contracts"`
	Customers       int `json:"customers"`

	TotalLimit        float64 `json:"total_limit"`
	TotalUtilized     float64 `json:"total_utilized"`
	TotalExposure     float64 `json:"total_exposure"`
	ActiveExposure    float64 `json:"active_exposure"`
	TotalCollateral   float64 `json:"total_collateral"`
	UnsecuredExposure float64 `json:"unsecured_exposure"`
	AvgInterestRate   float64 `json:"avg_interest_rate"`
	AvgTermMonths     float64 `json:"avg_term_months"`
	OverLimit         int     `json:"over_limit"`

	NPL         NPL                 `json:"npl"`
	Coverage    Coverage            `json:"coverage"`
	Ratings     []RatingBucket      `json:"ratings"`
	RiskClasses []RiskClassBucket   `json:"risk_classes"`
	Vintages    []Vintage           `json:"vintages"`
	Delinquency []DelinquencyBucket `json:"delinquency"`

	Warnings []credit.IntegrityWarning `json:"warnings,omitempty"`
}

// NPL uses the narrow definition: status defaulted only.
type NPL struct {
	Contracts     int     `json:"contracts"`
	Exposure      float64 `json:"exposure"`
	TotalExposure float64 `json:"total_exposure"`
	Ratio         float64 `json:"ratio"` // percent
	Collateral    float64 `json:"collateral"`
	Unsecured     float64 `json:"unsecured"`
}

type Coverage struct {
	Provisions       float64 `json:"provisions"`
	Ratio            float64 `json:"ratio"` // percent of NPL exposure
	Stage3Provisions float64 `json:"stage3_provisions"`
	Stage3Exposure   float64 `json:"stage3_exposure"`
	Stage3Ratio      float64 `json:"stage3_ratio"`
}

type RatingBucket struct {
	Grade               credit.Grade `json:"grade"`
	Customers           int          `json:"customers"`
	Contracts           int          `json:"contracts"`
	Exposure            float64      `json:"exposure"`
	Share               float64      `json:"share"`
	Defaulted           int          `json:"defaulted"`
	DefaultRate         float64      `json:"default_rate"`
	AvgCreditworthiness float64      `json:"avg_creditworthiness"`
}

type RiskClassBucket struct {
	Class     credit.RiskClass `json:"class"`
	Customers int              `json:"customers"`
	Exposure  float64          `json:"exposure"`
	Share     float64          `json:"share"`
}

// Vintage groups contracts by origination month, keyed YYYY-MM.
type Vintage struct {
	Key               string  `json:"key"`
	Contracts         int     `json:"contracts"`
	Volume            float64 `json:"volume"`
	Exposure          float64 `json:"exposure"`
	Defaulted         int     `json:"defaulted"`
	DefaultedExposure float64 `json:"defaulted_exposure"`
	DefaultRate       float64 `json:"default_rate"`
}

type DelinquencyBucket struct {
	Label       string  `json:"label"`
	MinDays     int     `json:"min_days"`
	MaxDays     int     `json:"max_days"` // -1 = open ended
	Payments    int     `json:"payments"`
	AmountDue   float64 `json:"amount_due"`
	AmountPaid  float64 `json:"amount_paid"`
	Outstanding float64 `json:"outstanding"`
	Share       float64 `json:"share"`
}

var delinquencyBands = []DelinquencyBucket{
	{Label: "current", MinDays: 0, MaxDays: 0},
	{Label: "1-30", MinDays: 1, MaxDays: 30},
	{Label: "31-60", MinDays: 31, MaxDays: 60},
	{Label: "61-90", MinDays: 61, MaxDays: 90},
	{Label: "91-180", MinDays: 91, MaxDays: 180},
	{Label: ">180", MinDays: 181, MaxDays: -1},
}

// Run pulls a snapshot and summarizes it.
func (a *Analyzer) Run(ctx context.Context, src credit.SnapshotSource) (*Summary, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return a.Summarize(snap), nil
}

// Summarize computes every aggregate from snap. Days late are measured at
// snap.TakenAt.
func (a *Analyzer) Summarize(snap *credit.Snapshot) *Summary {
	p := credit.Join(snap)
	logger.Skipped(a.log, p.Warnings)
	s := SummarizePortfolio(p, snap.TakenAt)

	a.log.Debug().
		Int("contracts", s.Contracts).
		Float64("total_exposure", s.TotalExposure).
		Float64("npl_ratio", s.NPL.Ratio).
		Msg("portfolio summarized")
	return s
}

// SummarizePortfolio is Summarize over an already joined portfolio.
func SummarizePortfolio(p *credit.Portfolio, asOf time.Time) *Summary {
	s := &Summary{AsOf: asOf, Warnings: p.Warnings}

	customers := make(map[int64]bool)
	var rates, terms, balances, collateral []float64
	for _, pos := range p.Positions {
		c := pos.Contract
		s.Contracts++
		customers[c.CustomerID] = true
		s.TotalLimit += c.CreditLimit
		s.TotalUtilized += c.UtilizedLimit
		rates = append(rates, c.InterestRate)
		terms = append(terms, float64(c.TermMonths))
		collateral = append(collateral, c.CollateralValue)
		if c.OverLimit() {
			s.OverLimit++
		}
		if c.Status == credit.StatusActive {
			s.ActiveContracts++
		}

		b, ok := c.Balance()
		if !ok {
			continue
		}
		balances = append(balances, b)
		if c.Status == credit.StatusActive {
			s.ActiveExposure += b
		}
		if c.Status == credit.StatusDefaulted {
			s.NPL.Contracts++
			s.NPL.Exposure += b
			s.NPL.Collateral += c.CollateralValue
		}
	}

	s.Customers = len(customers)
	s.TotalExposure = floats.Sum(balances)
	s.TotalCollateral = floats.Sum(collateral)
	s.UnsecuredExposure = max(0, s.TotalExposure-s.TotalCollateral)
	s.AvgInterestRate = mean(rates)
	s.AvgTermMonths = mean(terms)

	s.NPL.TotalExposure = s.TotalExposure
	s.NPL.Ratio = credit.Percent(s.NPL.Exposure, s.NPL.TotalExposure)
	s.NPL.Unsecured = max(0, s.NPL.Exposure-s.NPL.Collateral)

	s.Coverage = coverage(p, asOf, s.NPL.Exposure)
	s.Ratings = ratingHistogram(p)
	s.RiskClasses = riskClassHistogram(p)
	s.Vintages = vintages(p)
	s.Delinquency = delinquency(p, asOf)
	return s
}

// coverage uses the latest provision per contract dated on or before asOf.
func coverage(p *credit.Portfolio, asOf time.Time, nplExposure float64) Coverage {
	var cv Coverage
	for _, pos := range p.Positions {
		prov, ok := p.LatestProvision(pos.Contract.ID, asOf)
		if !ok {
			continue
		}
		cv.Provisions += prov.Amount
		if prov.Stage == credit.Stage3 {
			cv.Stage3Provisions += prov.Amount
			cv.Stage3Exposure += pos.Balance()
		}
	}
	cv.Ratio = credit.Percent(cv.Provisions, nplExposure)
	cv.Stage3Ratio = credit.Percent(cv.Stage3Provisions, cv.Stage3Exposure)
	return cv
}

// ratingHistogram covers every customer, with or without contracts, ordered by grade rank.
func ratingHistogram(p *credit.Portfolio) []RatingBucket {
	byGrade := make(map[credit.Grade]*RatingBucket)
	scores := make(map[credit.Grade][]float64)
	for _, c := range p.Customers {
		b := byGrade[c.Rating]
		if b == nil {
			b = &RatingBucket{Grade: c.Rating}
			byGrade[c.Rating] = b
		}
		b.Customers++
		scores[c.Rating] = append(scores[c.Rating], c.Creditworthiness)
	}

	var total float64
	for _, pos := range p.Positions {
		b := byGrade[pos.Customer.Rating]
		b.Contracts++
		b.Exposure += pos.Balance()
		total += pos.Balance()
		if pos.Contract.Status == credit.StatusDefaulted {
			b.Defaulted++
		}
	}

	var out []RatingBucket
	for _, g := range credit.Grades {
		b, ok := byGrade[g]
		if !ok {
			continue
		}
		b.Share = credit.Percent(b.Exposure, total)
		b.DefaultRate = credit.Percent(float64(b.Defaulted), float64(b.Contracts))
		b.AvgCreditworthiness = mean(scores[g])
		out = append(out, *b)
	}
	return out
}

// riskClassHistogram lists known classes first, then any drifted values by name.
func riskClassHistogram(p *credit.Portfolio) []RiskClassBucket {
	byClass := make(map[credit.RiskClass]*RiskClassBucket)
	for _, c := range p.Customers {
		b := byClass[c.RiskClass]
		if b == nil {
			b = &RiskClassBucket{Class: c.RiskClass}
			byClass[c.RiskClass] = b
		}
		b.Customers++
	}
	var total float64
	for _, pos := range p.Positions {
		byClass[pos.Customer.RiskClass].Exposure += pos.Balance()
		total += pos.Balance()
	}

	var out []RiskClassBucket
	seen := make(map[credit.RiskClass]bool)
	for _, rc := range credit.RiskClasses {
		if b, ok := byClass[rc]; ok {
			out = append(out, *b)
			seen[rc] = true
		}
	}
	var other []credit.RiskClass
	for rc := range byClass {
		if !seen[rc] {
			other = append(other, rc)
		}
	}
	sort.Slice(other, func(i, j int) bool { return other[i] < other[j] })
	for _, rc := range other {
		out = append(out, *byClass[rc])
	}

	for i := range out {
		out[i].Share = credit.Percent(out[i].Exposure, total)
	}
	return out
}

func vintages(p *credit.Portfolio) []Vintage {
	byKey := make(map[string]*Vintage)
	for _, pos := range p.Positions {
		c := pos.Contract
		key := c.OriginatedAt.Format("2006-01")
		v := byKey[key]
		if v == nil {
			v = &Vintage{Key: key}
			byKey[key] = v
		}
		v.Contracts++
		v.Volume += c.CreditLimit
		v.Exposure += pos.Balance()
		if c.Status == credit.StatusDefaulted {
			v.Defaulted++
			v.DefaultedExposure += pos.Balance()
		}
	}

	out := make([]Vintage, 0, len(byKey))
	for _, v := range byKey {
		v.DefaultRate = credit.Percent(float64(v.Defaulted), float64(v.Contracts))
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func delinquency(p *credit.Portfolio, asOf time.Time) []DelinquencyBucket {
	out := make([]DelinquencyBucket, len(delinquencyBands))
	copy(out, delinquencyBands)

	total := 0
	for _, pos := range p.Positions {
		for _, pay := range p.Payments[pos.Contract.ID] {
			d := pay.DaysLateAt(asOf)
			i := bandFor(d)
			out[i].Payments++
			out[i].AmountDue += pay.AmountDue
			out[i].AmountPaid += pay.AmountPaid
			out[i].Outstanding += max(0, pay.AmountDue-pay.AmountPaid)
			total++
		}
	}
	for i := range out {
		out[i].Share = credit.Percent(float64(out[i].Payments), float64(total))
	}
	return out
}

func bandFor(days int) int {
	for i, b := range delinquencyBands {
		if days >= b.MinDays && (b.MaxDays < 0 || days <= b.MaxDays) {
			return i
		}
	}
	return 0
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// Metrics flattens the headline aggregates into named values.
func (s *Summary) Metrics() map[string]float64 {
	return map[string]float64{
		"contracts":             float64(s.Contracts),
		"active_contracts":      float64(s.ActiveContracts),
		"customers":             float64(s.Customers),
		"total_limit":           s.TotalLimit,
		"total_utilized":        s.TotalUtilized,
		"total_exposure":        s.TotalExposure,
		"active_exposure":       s.ActiveExposure,
		"total_collateral":      s.TotalCollateral,
		"unsecured_exposure":    s.UnsecuredExposure,
		"avg_interest_rate":     s.AvgInterestRate,
		"avg_term_months":       s.AvgTermMonths,
		"over_limit_contracts":  float64(s.OverLimit),
		"npl_contracts":         float64(s.NPL.Contracts),
		"npl_exposure":          s.NPL.Exposure,
		"npl_ratio":             s.NPL.Ratio,
		"npl_unsecured":         s.NPL.Unsecured,
		"provisions":            s.Coverage.Provisions,
		"coverage_ratio":        s.Coverage.Ratio,
		"stage3_coverage_ratio": s.Coverage.Stage3Ratio,
		"integrity_warnings":    float64(len(s.Warnings)),
	}
}
