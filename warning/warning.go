// Package warning scans a portfolio snapshot for early-warning signals.
// Alerts are derived values: the same snapshot and as-of date always yield
// the same alerts in the same order.
package warning

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/concentration"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/logger"
)

type Severity string

const (
	Urgent   Severity = "urgent"
	Critical Severity = "critical"
	Warning  Severity = "warning"
	Info     Severity = "info"
)

// Severities in descending order of importance.
var Severities = []Severity{Urgent, Critical, Warning, Info}

func (s Severity) rank() int {
	for i, x := range Severities {
		if x == s {
			return i
		}
	}
	return len(Severities)
}

type Signal string

const (
	PaymentDelay           Signal = "payment_delay"
	HighUtilization        Signal = "high_utilization"
	RatingDowngrade        Signal = "rating_downgrade"
	CompoundRisk           Signal = "compound_risk"
	PaymentTrend           Signal = "payment_trend"
	FinancialDeterioration Signal = "financial_deterioration"
	LimitBreach            Signal = "limit_breach"
	ConcentrationBreach    Signal = "concentration_breach"
	Economic               Signal = "economic"
)

type Alert struct {
	ID         string   `json:"id"`
	Signal     Signal   `json:"signal"`
	Severity   Severity `json:"severity"`
	ContractID int64    `json:"contract_id,omitempty"`
	CustomerID int64    `json:"customer_id,omitempty"`
	Entity     string   `json:"entity"`
	Metric     float64  `json:"metric"`
	Threshold  float64  `json:"threshold"`
	Exposure   float64  `json:"exposure"`
	Message    string   `json:"message"`
	Action     string   `json:"action"`
}

type Result struct {
	AsOf     time.Time                 `json:"as_of"`
	Alerts   []Alert                   `json:"alerts"`
	Warnings []credit.IntegrityWarning `json:"warnings,omitempty"`
}

type Summary struct {
	Total      int              `json:"total"`
	BySeverity map[Severity]int `json:"by_severity"`
	BySignal   map[Signal]int   `json:"by_signal"`
}

// Summary counts alerts by severity and signal.
func (r *Result) Summary() Summary {
	s := Summary{
		Total:      len(r.Alerts),
		BySeverity: make(map[Severity]int, len(Severities)),
		BySignal:   make(map[Signal]int),
	}
	for _, sev := range Severities {
		s.BySeverity[sev] = 0
	}
	for _, a := range r.Alerts {
		s.BySeverity[a.Severity]++
		s.BySignal[a.Signal]++
	}
	return s
}

func (r *Result) Metrics() map[string]float64 {
	sum := r.Summary()
	m := map[string]float64{"alerts": float64(sum.Total)}
	for sev, n := range sum.BySeverity {
		m["alerts_"+string(sev)] = float64(n)
	}
	for sig, n := range sum.BySignal {
		m["signal_"+string(sig)] = float64(n)
	}
	return m
}

// Filter returns alerts at or above min severity.
func (r *Result) Filter(min Severity) []Alert {
	var out []Alert
	for _, a := range r.Alerts {
		if a.Severity.rank() <= min.rank() {
			out = append(out, a)
		}
	}
	return out
}

type Engine struct {
	cfg  *config.Config
	conc *concentration.Analyzer
	log  zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:  cfg,
		conc: concentration.New(cfg, log),
		log:  logger.Component(log, "warning"),
	}
}

func (e *Engine) Run(ctx context.Context, src credit.SnapshotSource, asOf time.Time) (*Result, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return e.Scan(snap, asOf)
}

// Scan evaluates every rule independently against snap as of asOf.
func (e *Engine) Scan(snap *credit.Snapshot, asOf time.Time) (*Result, error) {
	if err := credit.CheckAsOf(asOf, snap.TakenAt); err != nil {
		return nil, err
	}

	p := credit.Join(snap)
	logger.Skipped(e.log, p.Warnings)

	s := &scan{cfg: e.cfg, p: p, asOf: asOf, stamp: asOf.Format("20060102")}
	s.paymentDelay()
	s.highUtilization()
	s.ratingDowngrade()
	s.compoundRisk()
	s.paymentTrend()
	s.financialDeterioration()

	conc := e.conc.AnalyzePortfolio(p, asOf)
	s.limitBreach(conc)
	s.concentrationBreach(conc)
	s.economic()

	sortAlerts(s.alerts)
	r := &Result{AsOf: asOf, Alerts: s.alerts, Warnings: append(p.Warnings, conc.Warnings...)}

	e.log.Debug().
		Int("alerts", len(r.Alerts)).
		Str("as_of", asOf.Format(time.DateOnly)).
		Msg("early warning scan complete")
	return r, nil
}

func sortAlerts(a []Alert) {
	sort.SliceStable(a, func(i, j int) bool {
		x, y := a[i], a[j]
		if x.Severity.rank() != y.Severity.rank() {
			return x.Severity.rank() < y.Severity.rank()
		}
		if x.Signal != y.Signal {
			return x.Signal < y.Signal
		}
		if x.CustomerID != y.CustomerID {
			return x.CustomerID < y.CustomerID
		}
		if x.ContractID != y.ContractID {
			return x.ContractID < y.ContractID
		}
		return x.Entity < y.Entity
	})
}
