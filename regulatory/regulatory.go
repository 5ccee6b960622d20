// Package regulatory computes IFRS 9 staging and expected credit loss, and
// standardized-approach risk-weighted assets and capital requirements.
package regulatory

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/analytics"
	"github.com/rustyeddy/creditrisk/concentration"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/id"
	"github.com/rustyeddy/creditrisk/pkg/logger"
)

// Store is what Run needs from the data layer.
type Store interface {
	credit.SnapshotSource
	AppendProvisions(ctx context.Context, ps []credit.Provision) error
}

// ClassifyStage maps days past due and default status to an IFRS 9 stage.
// The result depends only on the inputs, never on a previous stage.
func ClassifyStage(dpd int, defaulted bool, th config.IFRS9Config) credit.Stage {
	switch {
	case defaulted || dpd > th.Stage2MaxDPD:
		return credit.Stage3
	case dpd > th.Stage1MaxDPD:
		return credit.Stage2
	}
	return credit.Stage1
}

// LifetimePD extends a 12 month PD over the remaining term with a constant
// hazard rate. Terms up to a year return pd unchanged.
func LifetimePD(pd float64, months int) float64 {
	if months <= 12 {
		return pd
	}
	return credit.CapPD(1 - math.Pow(1-pd, float64(months)/12))
}

// Line is one contract's provision with the inputs that produced it.
type Line struct {
	credit.Provision
	CustomerID int64        `json:"customer_id"`
	Rating     credit.Grade `json:"rating"`
	DPD        int          `json:"dpd"`
	Defaulted  bool         `json:"defaulted"`
}

type StageSummary struct {
	Stage     credit.Stage `json:"stage"`
	Contracts int          `json:"contracts"`
	EAD       float64      `json:"ead"`
	ECL       float64      `json:"ecl"`
	Coverage  float64      `json:"coverage"` // ECL / EAD in percent
}

type RWABucket struct {
	Rating     credit.Grade `json:"rating"`
	Contracts  int          `json:"contracts"`
	EAD        float64      `json:"ead"`
	RiskWeight float64      `json:"risk_weight"`
	RWA        float64      `json:"rwa"`
}

// Capital holds minimum requirements as amounts derived from RWA.
type Capital struct {
	EAD                float64 `json:"ead"`
	RWA                float64 `json:"rwa"`
	Density            float64 `json:"density"` // RWA / EAD in percent
	CET1               float64 `json:"cet1"`
	Tier1              float64 `json:"tier1"`
	Total              float64 `json:"total"`
	ConservationBuffer float64 `json:"conservation_buffer"`
	TotalWithBuffer    float64 `json:"total_with_buffer"`
}

type Report struct {
	RunID string    `json:"run_id"`
	AsOf  time.Time `json:"as_of"`

	Lines          []Line         `json:"lines"`
	Stages         []StageSummary `json:"stages"`
	TotalEAD       float64        `json:"total_ead"`
	TotalECL       float64        `json:"total_ecl"`
	ProvisionDelta float64        `json:"provision_delta"`

	RWA     []RWABucket `json:"rwa"`
	Capital Capital     `json:"capital"`

	NPLRatio       float64                       `json:"npl_ratio"`
	LargeExposures []concentration.LargeExposure `json:"large_exposures"`

	Warnings []credit.IntegrityWarning `json:"warnings,omitempty"`
}

// Provisions returns the rows to persist, one per contract.
func (r *Report) Provisions() []credit.Provision {
	out := make([]credit.Provision, len(r.Lines))
	for i, l := range r.Lines {
		out[i] = l.Provision
	}
	return out
}

func (r *Report) Metrics() map[string]float64 {
	m := map[string]float64{
		"total_ead":       r.TotalEAD,
		"total_ecl":       r.TotalECL,
		"provision_delta": r.ProvisionDelta,
		"rwa":             r.Capital.RWA,
		"rwa_density":     r.Capital.Density,
		"capital_cet1":    r.Capital.CET1,
		"capital_tier1":   r.Capital.Tier1,
		"capital_total":   r.Capital.Total,
		"npl_ratio":       r.NPLRatio,
		"large_exposures": float64(len(r.LargeExposures)),
	}
	for _, s := range r.Stages {
		k := fmt.Sprintf("stage%d_", s.Stage)
		m[k+"contracts"] = float64(s.Contracts)
		m[k+"ead"] = s.EAD
		m[k+"ecl"] = s.ECL
	}
	return m
}

type Engine struct {
	cfg  *config.Config
	conc *concentration.Analyzer
	log  zerolog.Logger
}

func New(cfg *config.Config, conc *concentration.Analyzer, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, conc: conc, log: logger.Component(log, "regulatory")}
}

// Run computes the report and, when persist is set, appends its provisions in
// a single transaction. Nothing is written if the computation fails.
func (e *Engine) Run(ctx context.Context, st Store, asOf time.Time, persist bool) (*Report, error) {
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	r, err := e.Compute(snap, asOf)
	if err != nil {
		return nil, err
	}
	if persist {
		if err := st.AppendProvisions(ctx, r.Provisions()); err != nil {
			return nil, fmt.Errorf("persist provisions: %w", err)
		}
		e.log.Info().
			Str("run_id", r.RunID).
			Int("provisions", len(r.Lines)).
			Msg("provisions persisted")
	}
	return r, nil
}

func (e *Engine) Compute(snap *credit.Snapshot, asOf time.Time) (*Report, error) {
	if err := credit.CheckAsOf(asOf, snap.TakenAt); err != nil {
		return nil, err
	}

	p := credit.Join(snap)
	logger.Skipped(e.log, p.Warnings)

	r := &Report{RunID: id.New(), AsOf: asOf, Warnings: p.Warnings}

	stages := map[credit.Stage]*StageSummary{}
	for _, s := range []credit.Stage{credit.Stage1, credit.Stage2, credit.Stage3} {
		stages[s] = &StageSummary{Stage: s}
	}
	buckets := map[credit.Grade]*RWABucket{}

	for _, pos := range p.Positions {
		c := pos.Contract
		if c.Status == credit.StatusClosed {
			continue
		}
		line, err := e.provision(p, pos, asOf, r.RunID)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", c.ID, err)
		}
		r.Lines = append(r.Lines, line)

		ss := stages[line.Stage]
		ss.Contracts++
		ss.EAD += line.EAD
		ss.ECL += line.Amount
		r.TotalEAD += line.EAD
		r.TotalECL += line.Amount
		r.ProvisionDelta += line.Delta

		if c.Status != credit.StatusActive {
			continue
		}
		rw, err := e.cfg.RiskWeightFor(pos.Customer.Rating)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", c.ID, err)
		}
		b := buckets[pos.Customer.Rating]
		if b == nil {
			b = &RWABucket{Rating: pos.Customer.Rating, RiskWeight: rw}
			buckets[pos.Customer.Rating] = b
		}
		b.Contracts++
		b.EAD += line.EAD
		b.RWA += line.EAD * rw
	}

	for _, s := range []credit.Stage{credit.Stage1, credit.Stage2, credit.Stage3} {
		ss := stages[s]
		ss.Coverage = credit.Percent(ss.ECL, ss.EAD)
		r.Stages = append(r.Stages, *ss)
	}
	for _, g := range credit.Grades {
		if b := buckets[g]; b != nil {
			r.RWA = append(r.RWA, *b)
		}
	}
	r.Capital = e.capital(r.RWA)

	r.NPLRatio = analytics.SummarizePortfolio(p, asOf).NPL.Ratio
	r.LargeExposures = e.conc.AnalyzePortfolio(p, asOf).LargeExposures

	e.log.Debug().
		Str("run_id", r.RunID).
		Int("contracts", len(r.Lines)).
		Float64("ecl", r.TotalECL).
		Float64("rwa", r.Capital.RWA).
		Msg("regulatory report computed")
	return r, nil
}

func (e *Engine) provision(p *credit.Portfolio, pos credit.Position, asOf time.Time, runID string) (Line, error) {
	c := pos.Contract
	pd := c.PD
	if pd <= 0 {
		var err error
		if pd, err = e.cfg.PDFor(pos.Customer.Rating); err != nil {
			return Line{}, err
		}
	}

	dpd := p.MaxDaysPastDue(c.ID, asOf)
	defaulted := p.OpenDefault[c.ID] || c.Status == credit.StatusDefaulted
	stage := ClassifyStage(dpd, defaulted, e.cfg.IFRS9)

	ead := c.Exposure()
	pdLife := LifetimePD(pd, c.RemainingMonths(asOf))
	ecl12 := credit.ExpectedLoss(pd, c.LGD, ead)
	eclLife := credit.ExpectedLoss(pdLife, c.LGD, ead)

	amount := ecl12
	if stage != credit.Stage1 {
		amount = eclLife
	}

	prov := credit.Provision{
		ID:          id.At(asOf),
		RunID:       runID,
		ContractID:  c.ID,
		AsOf:        asOf,
		Stage:       stage,
		ECL12m:      ecl12,
		ECLLifetime: eclLife,
		PD12m:       pd,
		PDLifetime:  pdLife,
		LGD:         c.LGD,
		EAD:         ead,
		Amount:      amount,
		Delta:       amount,
	}
	if prior, ok := p.PriorProvision(c.ID, asOf); ok {
		prov.PriorAmount = &prior.Amount
		prov.Delta = amount - prior.Amount
	}

	return Line{
		Provision:  prov,
		CustomerID: pos.Customer.ID,
		Rating:     pos.Customer.Rating,
		DPD:        dpd,
		Defaulted:  defaulted,
	}, nil
}

func (e *Engine) capital(buckets []RWABucket) Capital {
	var c Capital
	for _, b := range buckets {
		c.EAD += b.EAD
		c.RWA += b.RWA
	}
	cc := e.cfg.Capital
	c.Density = credit.Percent(c.RWA, c.EAD)
	c.CET1 = c.RWA * cc.CET1Ratio
	c.Tier1 = c.RWA * cc.Tier1Ratio
	c.Total = c.RWA * cc.TotalRatio
	c.ConservationBuffer = c.RWA * cc.ConservationBuffer
	c.TotalWithBuffer = c.Total + c.ConservationBuffer
	return c
}
