// Package stress recomputes expected loss and capital under PD shocks.
// Baseline data is never modified; every result is built from a fresh join.
package stress

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/analytics"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/logger"
	"gonum.org/v1/gonum/floats"
)

// CustomKey marks scenarios built with Custom.
const CustomKey = "custom"

// Custom builds a scenario outside the catalog. An empty industry applies the
// shock to every contract.
func Custom(name string, multiplier float64, industry string, addOn float64) (config.Scenario, error) {
	if name == "" {
		return config.Scenario{}, credit.InvalidInput("scenario name is required")
	}
	s := config.Scenario{
		Key:              CustomKey,
		Name:             name,
		PDMultiplier:     multiplier,
		ScopeIndustry:    industry,
		DefaultRateAddOn: addOn,
	}
	if err := check(s); err != nil {
		return config.Scenario{}, err
	}
	return s, nil
}

func check(s config.Scenario) error {
	switch {
	case s.Name == "" && s.Key == "":
		return credit.InvalidInput("scenario name is required")
	case s.PDMultiplier <= 0:
		return credit.InvalidInput("pd multiplier must be positive, got %v", s.PDMultiplier)
	case s.DefaultRateAddOn < 0:
		return credit.InvalidInput("default rate add-on must not be negative, got %v", s.DefaultRateAddOn)
	}
	return nil
}

type ContractResult struct {
	ContractID    int64        `json:"contract_id"`
	CustomerID    int64        `json:"customer_id"`
	Industry      string       `json:"industry"`
	Rating        credit.Grade `json:"rating"`
	InScope       bool         `json:"in_scope"`
	EAD           float64      `json:"ead"`
	LGD           float64      `json:"lgd"`
	PD            float64      `json:"pd"`
	StressedPD    float64      `json:"stressed_pd"`
	BaselineEL    float64      `json:"baseline_el"`
	StressedEL    float64      `json:"stressed_el"`
	BaselineRWA   float64      `json:"baseline_rwa"`
	StressedRWA   float64      `json:"stressed_rwa"`
	BaselineStage credit.Stage `json:"baseline_stage"`
	StressedStage credit.Stage `json:"stressed_stage"`
}

// Breakdown aggregates contract results under one key.
type Breakdown struct {
	Key        string  `json:"key"`
	Contracts  int     `json:"contracts"`
	Exposure   float64 `json:"exposure"`
	BaselineEL float64 `json:"baseline_el"`
	StressedEL float64 `json:"stressed_el"`
	Delta      float64 `json:"delta"`
}

// Migration counts contracts whose stage worsens under stress.
type Migration struct {
	OneToTwo   int `json:"stage1_to_stage2"`
	OneToThree int `json:"stage1_to_stage3"`
	TwoToThree int `json:"stage2_to_stage3"`
}

func (m Migration) Total() int { return m.OneToTwo + m.OneToThree + m.TwoToThree }

type Result struct {
	Scenario config.Scenario `json:"scenario"`
	AsOf     time.Time       `json:"as_of"`

	Exposure   float64 `json:"exposure"`
	BaselineEL float64 `json:"baseline_el"`
	StressedEL float64 `json:"stressed_el"`
	Delta      float64 `json:"delta"`
	DeltaPct   float64 `json:"delta_pct"`

	BaselineNPLRatio float64 `json:"baseline_npl_ratio"`
	StressedNPLRatio float64 `json:"stressed_npl_ratio"`

	BaselineRWA   float64 `json:"baseline_rwa"`
	StressedRWA   float64 `json:"stressed_rwa"`
	CapitalImpact float64 `json:"capital_impact"`

	Migration  Migration        `json:"migration"`
	Industries []Breakdown      `json:"industries"`
	Ratings    []Breakdown      `json:"ratings"`
	Contracts  []ContractResult `json:"contracts"`

	Warnings []credit.IntegrityWarning `json:"warnings,omitempty"`
}

func (r *Result) Metrics() map[string]float64 {
	return map[string]float64{
		"exposure":           r.Exposure,
		"baseline_el":        r.BaselineEL,
		"stressed_el":        r.StressedEL,
		"el_delta":           r.Delta,
		"el_delta_pct":       r.DeltaPct,
		"baseline_npl_ratio": r.BaselineNPLRatio,
		"stressed_npl_ratio": r.StressedNPLRatio,
		"baseline_rwa":       r.BaselineRWA,
		"stressed_rwa":       r.StressedRWA,
		"capital_impact":     r.CapitalImpact,
		"stage_migrations":   float64(r.Migration.Total()),
	}
}

// SensitivityPoint is one multiplier in a sensitivity sweep.
type SensitivityPoint struct {
	Multiplier    float64 `json:"multiplier"`
	StressedEL    float64 `json:"stressed_el"`
	Delta         float64 `json:"delta"`
	DeltaPct      float64 `json:"delta_pct"`
	CapitalImpact float64 `json:"capital_impact"`
}

type Engine struct {
	cfg *config.Config
	log zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: logger.Component(log, "stress")}
}

func (e *Engine) Run(ctx context.Context, src credit.SnapshotSource, s config.Scenario) (*Result, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return e.Apply(snap, s)
}

// ApplyNamed runs a catalog scenario by key.
func (e *Engine) ApplyNamed(snap *credit.Snapshot, key string) (*Result, error) {
	if key == "" {
		return nil, credit.InvalidInput("scenario name is required")
	}
	s, err := e.cfg.Scenario(key)
	if err != nil {
		return nil, err
	}
	return e.Apply(snap, s)
}

// ApplyAll runs every catalog scenario in catalog order.
func (e *Engine) ApplyAll(snap *credit.Snapshot) ([]*Result, error) {
	out := make([]*Result, 0, len(e.cfg.Stress.Scenarios))
	for _, s := range e.cfg.Stress.Scenarios {
		r, err := e.Apply(snap, s)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Key, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Sensitivity reruns base with each multiplier in turn.
func (e *Engine) Sensitivity(snap *credit.Snapshot, base config.Scenario, multipliers []float64) ([]SensitivityPoint, error) {
	if len(multipliers) == 0 {
		return nil, credit.InvalidInput("no multipliers given")
	}
	out := make([]SensitivityPoint, 0, len(multipliers))
	for _, m := range multipliers {
		s := base
		s.PDMultiplier = m
		s.Name = fmt.Sprintf("%s x%g", base.Name, m)
		r, err := e.Apply(snap, s)
		if err != nil {
			return nil, err
		}
		out = append(out, SensitivityPoint{
			Multiplier:    m,
			StressedEL:    r.StressedEL,
			Delta:         r.Delta,
			DeltaPct:      r.DeltaPct,
			CapitalImpact: r.CapitalImpact,
		})
	}
	return out, nil
}

// Apply stresses every active contract. Contracts outside the scenario's
// industry keep their baseline PD.
func (e *Engine) Apply(snap *credit.Snapshot, s config.Scenario) (*Result, error) {
	if err := check(s); err != nil {
		return nil, err
	}

	p := credit.Join(snap)
	logger.Skipped(e.log, p.Warnings)

	r := &Result{Scenario: s, AsOf: snap.TakenAt, Warnings: p.Warnings}
	for _, pos := range p.Active() {
		cr, err := e.stressContract(p, pos, s, snap.TakenAt)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", pos.Contract.ID, err)
		}
		r.Contracts = append(r.Contracts, cr)
		r.Migration.add(cr.BaselineStage, cr.StressedStage)
	}

	r.Exposure = sum(r.Contracts, func(c ContractResult) float64 { return c.EAD })
	r.BaselineEL = sum(r.Contracts, func(c ContractResult) float64 { return c.BaselineEL })
	r.StressedEL = sum(r.Contracts, func(c ContractResult) float64 { return c.StressedEL })
	r.BaselineRWA = sum(r.Contracts, func(c ContractResult) float64 { return c.BaselineRWA })
	r.StressedRWA = sum(r.Contracts, func(c ContractResult) float64 { return c.StressedRWA })
	r.Delta = r.StressedEL - r.BaselineEL
	r.DeltaPct = credit.Percent(r.Delta, r.BaselineEL)
	r.CapitalImpact = (r.StressedRWA - r.BaselineRWA) * e.cfg.Capital.TotalRatio

	r.BaselineNPLRatio = analytics.SummarizePortfolio(p, snap.TakenAt).NPL.Ratio
	r.StressedNPLRatio = min(100, r.BaselineNPLRatio+s.DefaultRateAddOn*100)

	r.Industries = breakdown(r.Contracts, func(c ContractResult) string { return c.Industry })
	sort.Slice(r.Industries, func(i, j int) bool { return r.Industries[i].Key < r.Industries[j].Key })
	r.Ratings = breakdown(r.Contracts, func(c ContractResult) string { return string(c.Rating) })
	sort.Slice(r.Ratings, func(i, j int) bool {
		return credit.Grade(r.Ratings[i].Key).Rank() < credit.Grade(r.Ratings[j].Key).Rank()
	})

	e.log.Debug().
		Str("scenario", s.Key).
		Float64("baseline_el", r.BaselineEL).
		Float64("stressed_el", r.StressedEL).
		Int("contracts", len(r.Contracts)).
		Msg("stress scenario applied")
	return r, nil
}

func (e *Engine) stressContract(p *credit.Portfolio, pos credit.Position, s config.Scenario, asOf time.Time) (ContractResult, error) {
	c, cust := pos.Contract, pos.Customer
	st := e.cfg.Stress

	pd := c.PD
	if pd <= 0 {
		var err error
		if pd, err = e.cfg.PDFor(cust.Rating); err != nil {
			return ContractResult{}, err
		}
	}
	rw, err := e.cfg.RiskWeightFor(cust.Rating)
	if err != nil {
		return ContractResult{}, err
	}

	cr := ContractResult{
		ContractID:    c.ID,
		CustomerID:    cust.ID,
		Industry:      cust.Industry,
		Rating:        cust.Rating,
		InScope:       s.ScopeIndustry == "" || s.ScopeIndustry == cust.Industry,
		EAD:           c.Exposure(),
		LGD:           c.LGD,
		PD:            pd,
		StressedPD:    pd,
		BaselineStage: credit.Stage1,
	}
	if cr.InScope {
		cr.StressedPD = credit.CapPD(pd * s.PDMultiplier)
	}
	if prov, ok := p.LatestProvision(c.ID, asOf); ok && prov.Stage != 0 {
		cr.BaselineStage = prov.Stage
	}

	cr.BaselineEL = credit.ExpectedLoss(cr.PD, cr.LGD, cr.EAD)
	cr.StressedEL = credit.ExpectedLoss(cr.StressedPD, cr.LGD, cr.EAD)

	cr.BaselineRWA = cr.EAD * rw
	adj := min(st.RWMultiplierCap, cr.StressedPD/max(cr.PD, 0.0001))
	cr.StressedRWA = cr.EAD * rw * (1 + (adj-1)*st.RWSensitivity)

	cr.StressedStage = cr.BaselineStage
	if cr.StressedPD > cr.PD {
		switch {
		case cr.StressedPD >= st.Stage3PD:
			cr.StressedStage = credit.Stage3
		case cr.StressedPD > cr.PD*st.Stage2PDFactor || cr.StressedPD > cr.PD+st.Stage2PDAddOn:
			cr.StressedStage = max(cr.BaselineStage, credit.Stage2)
		}
	}
	return cr, nil
}

func (m *Migration) add(from, to credit.Stage) {
	switch {
	case from == credit.Stage1 && to == credit.Stage2:
		m.OneToTwo++
	case from == credit.Stage1 && to == credit.Stage3:
		m.OneToThree++
	case from == credit.Stage2 && to == credit.Stage3:
		m.TwoToThree++
	}
}

func sum(cs []ContractResult, f func(ContractResult) float64) float64 {
	xs := make([]float64, len(cs))
	for i, c := range cs {
		xs[i] = f(c)
	}
	return floats.Sum(xs)
}

func breakdown(cs []ContractResult, key func(ContractResult) string) []Breakdown {
	idx := make(map[string]int)
	var out []Breakdown
	for _, c := range cs {
		k := key(c)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Breakdown{Key: k})
		}
		b := &out[i]
		b.Contracts++
		b.Exposure += c.EAD
		b.BaselineEL += c.BaselineEL
		b.StressedEL += c.StressedEL
		b.Delta = b.StressedEL - b.BaselineEL
	}
	return out
}
