// Package concentration measures how active exposure is spread over
// customers, industries, regions and products, and re-evaluates risk limits.
package concentration

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/rustyeddy/creditrisk/pkg/logger"
)

type Analyzer struct {
	cfg  *config.Config
	topN int
	log  zerolog.Logger
}

func New(cfg *config.Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, topN: cfg.Concentration.TopN, log: logger.Component(log, "concentration")}
}

// WithTopN returns a copy ranking n customers instead of the configured number.
func (a *Analyzer) WithTopN(n int) (*Analyzer, error) {
	if n <= 0 {
		return nil, credit.InvalidInput("top-n must be positive, got %d", n)
	}
	cp := *a
	cp.topN = n
	return &cp, nil
}

const (
	DimCustomer = "customer"
	DimIndustry = "industry"
	DimRegion   = "region"
	DimProduct  = "product"
	DimLimit    = "limit"
)

// Share is one slice of total active exposure. ID is set for customers only.
type Share struct {
	Key       string  `json:"key"`
	ID        int64   `json:"id,omitempty"`
	Exposure  float64 `json:"exposure"`
	Share     float64 `json:"share"`
	Contracts int     `json:"contracts"`
	Ceiling   float64 `json:"ceiling"`
	Breached  bool    `json:"breached"`
}

type TopExposure struct {
	CustomerID       int64        `json:"customer_id"`
	Name             string       `json:"name"`
	Industry         string       `json:"industry"`
	Region           string       `json:"region"`
	Rating           credit.Grade `json:"rating"`
	Contracts        int          `json:"contracts"`
	Gross            float64      `json:"gross"`
	Collateral       float64      `json:"collateral"`
	Net              float64      `json:"net"`
	Share            float64      `json:"share"`
	Limit            float64      `json:"limit"`
	LimitUtilization float64      `json:"limit_utilization"`
}

// Matrix is industry (rows) by region (columns), both sorted by name.
type Matrix struct {
	Industries []string    `json:"industries"`
	Regions    []string    `json:"regions"`
	Cells      [][]float64 `json:"cells"`
	Pct        [][]float64 `json:"pct"`
	RowTotals  []float64   `json:"row_totals"`
	ColTotals  []float64   `json:"col_totals"`
	Total      float64     `json:"total"`
}

// Cell returns the exposure for one industry/region pair, 0 if absent.
func (m Matrix) Cell(industry, region string) float64 {
	i := sort.SearchStrings(m.Industries, industry)
	j := sort.SearchStrings(m.Regions, region)
	if i >= len(m.Industries) || m.Industries[i] != industry || j >= len(m.Regions) || m.Regions[j] != region {
		return 0
	}
	return m.Cells[i][j]
}

type LargeExposure struct {
	CustomerID int64   `json:"customer_id"`
	Name       string  `json:"name"`
	Exposure   float64 `json:"exposure"`
	Share      float64 `json:"share"`
	Regulatory bool    `json:"regulatory"`
}

type LimitState string

const (
	LimitOK       LimitState = "ok"
	LimitWarning  LimitState = "warning"
	LimitCritical LimitState = "critical"
	LimitBreached LimitState = "breached"
)

// LimitStatus is a RiskLimit with its derived fields recomputed from live exposure.
type LimitStatus struct {
	Limit  credit.RiskLimit `json:"limit"`
	State  LimitState       `json:"state"`
	Active bool             `json:"active"`
}

type Breach struct {
	Dimension string  `json:"dimension"`
	Key       string  `json:"key"`
	Value     float64 `json:"value"` // share or utilization percent
	Ceiling   float64 `json:"ceiling"`
}

type Report struct {
	AsOf          time.Time `json:"as_of"`
	TotalExposure float64   `json:"total_exposure"`

	Customers  []Share `json:"customers"`
	Industries []Share `json:"industries"`
	Regions    []Share `json:"regions"`
	Products   []Share `json:"products"`

	Top            []TopExposure   `json:"top"`
	Matrix         Matrix          `json:"matrix"`
	LargeExposures []LargeExposure `json:"large_exposures"`
	Limits         []LimitStatus   `json:"limits"`

	Warnings []credit.IntegrityWarning `json:"warnings,omitempty"`
}

func (a *Analyzer) Run(ctx context.Context, src credit.SnapshotSource) (*Report, error) {
	snap, err := src.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return a.Analyze(snap), nil
}

// Analyze joins snap and measures concentration as of snap.TakenAt.
func (a *Analyzer) Analyze(snap *credit.Snapshot) *Report {
	p := credit.Join(snap)
	logger.Skipped(a.log, p.Warnings)
	r := a.AnalyzePortfolio(p, snap.TakenAt)
	r.Warnings = append(append([]credit.IntegrityWarning(nil), p.Warnings...), r.Warnings...)

	a.log.Debug().
		Float64("total_exposure", r.TotalExposure).
		Int("breaches", len(r.Breaches())).
		Msg("concentration analyzed")
	return r
}

type agg struct {
	exposure  float64
	contracts int
}

// AnalyzePortfolio works on an already joined portfolio. Only limit records
// with an unknown type end up in the returned warnings.
func (a *Analyzer) AnalyzePortfolio(p *credit.Portfolio, asOf time.Time) *Report {
	cc := a.cfg.Concentration
	r := &Report{AsOf: asOf}

	byCustomer := map[int64]*agg{}
	byIndustry := map[string]*agg{}
	byRegion := map[string]*agg{}
	byProduct := map[string]*agg{}
	top := map[int64]*TopExposure{}
	cells := map[[2]string]float64{}

	add := func(m map[string]*agg, k string, b float64) {
		g := m[k]
		if g == nil {
			g = &agg{}
			m[k] = g
		}
		g.exposure += b
		g.contracts++
	}

	for _, pos := range p.Active() {
		b, ok := pos.Contract.Balance()
		if !ok {
			continue
		}
		cust := pos.Customer
		r.TotalExposure += b

		g := byCustomer[cust.ID]
		if g == nil {
			g = &agg{}
			byCustomer[cust.ID] = g
		}
		g.exposure += b
		g.contracts++
		add(byIndustry, cust.Industry, b)
		add(byRegion, cust.Region, b)
		add(byProduct, pos.Contract.ProductType, b)
		cells[[2]string{cust.Industry, cust.Region}] += b

		te := top[cust.ID]
		if te == nil {
			te = &TopExposure{
				CustomerID: cust.ID,
				Name:       cust.Name,
				Industry:   cust.Industry,
				Region:     cust.Region,
				Rating:     cust.Rating,
			}
			top[cust.ID] = te
		}
		te.Contracts++
		te.Gross += b
		te.Collateral += pos.Contract.CollateralValue
		te.Limit += pos.Contract.CreditLimit
	}

	for id, g := range byCustomer {
		r.Customers = append(r.Customers, Share{
			Key:       strconv.FormatInt(id, 10),
			ID:        id,
			Exposure:  g.exposure,
			Share:     credit.Percent(g.exposure, r.TotalExposure),
			Contracts: g.contracts,
			Ceiling:   cc.SingleCustomerMaxPct,
		})
	}
	r.Industries = shares(byIndustry, r.TotalExposure, cc.IndustryMaxPct)
	r.Regions = shares(byRegion, r.TotalExposure, cc.RegionMaxPct)
	r.Products = shares(byProduct, r.TotalExposure, cc.ProductMaxPct)
	for i := range r.Customers {
		r.Customers[i].Breached = r.Customers[i].Share > r.Customers[i].Ceiling
	}
	sortShares(r.Customers)

	r.Top = rankTop(top, r.TotalExposure, a.topN)
	r.Matrix = buildMatrix(cells, r.TotalExposure)
	r.LargeExposures = largeExposures(r.Customers, p.Customers, cc.LargeExposureReportingPct, cc.LargeExposureRegulatoryPct)
	r.Limits, r.Warnings = a.evaluateLimits(p.Limits, asOf, r.TotalExposure, byCustomer, byIndustry, byRegion, byProduct)
	return r
}

func shares(m map[string]*agg, total, ceiling float64) []Share {
	out := make([]Share, 0, len(m))
	for k, g := range m {
		s := Share{
			Key:       k,
			Exposure:  g.exposure,
			Share:     credit.Percent(g.exposure, total),
			Contracts: g.contracts,
			Ceiling:   ceiling,
		}
		s.Breached = s.Share > ceiling
		out = append(out, s)
	}
	sortShares(out)
	return out
}

// sortShares orders by exposure descending, ties by id then key ascending.
func sortShares(s []Share) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Exposure != s[j].Exposure {
			return s[i].Exposure > s[j].Exposure
		}
		if s[i].ID != s[j].ID {
			return s[i].ID < s[j].ID
		}
		return s[i].Key < s[j].Key
	})
}

func rankTop(m map[int64]*TopExposure, total float64, n int) []TopExposure {
	out := make([]TopExposure, 0, len(m))
	for _, te := range m {
		te.Net = te.Gross - te.Collateral
		te.Share = credit.Percent(te.Gross, total)
		te.LimitUtilization = credit.Percent(te.Gross, te.Limit)
		out = append(out, *te)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Net != out[j].Net {
			return out[i].Net > out[j].Net
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func buildMatrix(cells map[[2]string]float64, total float64) Matrix {
	inds := map[string]bool{}
	regs := map[string]bool{}
	for k := range cells {
		inds[k[0]] = true
		regs[k[1]] = true
	}
	m := Matrix{Industries: sortedKeys(inds), Regions: sortedKeys(regs), Total: total}
	m.RowTotals = make([]float64, len(m.Industries))
	m.ColTotals = make([]float64, len(m.Regions))
	for i, ind := range m.Industries {
		row := make([]float64, len(m.Regions))
		pct := make([]float64, len(m.Regions))
		for j, reg := range m.Regions {
			v := cells[[2]string{ind, reg}]
			row[j] = v
			pct[j] = credit.Percent(v, total)
			m.RowTotals[i] += v
			m.ColTotals[j] += v
		}
		m.Cells = append(m.Cells, row)
		m.Pct = append(m.Pct, pct)
	}
	return m
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func largeExposures(customers []Share, names map[int64]credit.Customer, reportingPct, regulatoryPct float64) []LargeExposure {
	var out []LargeExposure
	// customers is already ordered by exposure desc, id asc
	for _, s := range customers {
		if s.Share < reportingPct {
			continue
		}
		out = append(out, LargeExposure{
			CustomerID: s.ID,
			Name:       names[s.ID].Name,
			Exposure:   s.Exposure,
			Share:      s.Share,
			Regulatory: s.Share >= regulatoryPct,
		})
	}
	return out
}

func (a *Analyzer) evaluateLimits(limits []credit.RiskLimit, asOf time.Time, total float64,
	byCustomer map[int64]*agg, byIndustry, byRegion, byProduct map[string]*agg,
) ([]LimitStatus, []credit.IntegrityWarning) {
	exposureOf := func(m map[string]*agg, k string) float64 {
		if g := m[k]; g != nil {
			return g.exposure
		}
		return 0
	}

	var out []LimitStatus
	var warns []credit.IntegrityWarning
	for _, l := range limits {
		var util float64
		switch l.Type {
		case credit.LimitCustomer:
			if g := byCustomer[l.ReferenceID]; g != nil {
				util = g.exposure
			}
		case credit.LimitIndustry:
			util = exposureOf(byIndustry, l.ReferenceValue)
		case credit.LimitRegion:
			util = exposureOf(byRegion, l.ReferenceValue)
		case credit.LimitProduct:
			util = exposureOf(byProduct, l.ReferenceValue)
		case credit.LimitTotal:
			util = total
		default:
			w := credit.IntegrityWarning{Entity: "risk_limit", ID: l.ID, Msg: "unknown limit type " + string(l.Type)}
			a.log.Warn().Str("record", w.String()).Msg("skipped record")
			warns = append(warns, w)
			continue
		}

		if l.WarningPct <= 0 {
			l.WarningPct = a.cfg.Limits.WarningPct
		}
		if l.CriticalPct <= 0 {
			l.CriticalPct = a.cfg.Limits.CriticalPct
		}
		l = l.WithUtilization(util)
		out = append(out, LimitStatus{Limit: l, State: State(l), Active: l.ValidAt(asOf)})
	}
	return out, warns
}

// State classifies a limit with already recomputed derived fields.
func State(l credit.RiskLimit) LimitState {
	warning, critical := l.Thresholds()
	switch {
	case l.Breached:
		return LimitBreached
	case l.UtilizationPct >= critical:
		return LimitCritical
	case l.UtilizationPct >= warning:
		return LimitWarning
	}
	return LimitOK
}

// Breaches lists every ceiling exceeded and every active limit breached.
func (r *Report) Breaches() []Breach {
	var out []Breach
	collect := func(dim string, ss []Share) {
		for _, s := range ss {
			if s.Breached {
				out = append(out, Breach{Dimension: dim, Key: s.Key, Value: s.Share, Ceiling: s.Ceiling})
			}
		}
	}
	collect(DimCustomer, r.Customers)
	collect(DimIndustry, r.Industries)
	collect(DimRegion, r.Regions)
	collect(DimProduct, r.Products)
	for _, ls := range r.Limits {
		if ls.Active && ls.State == LimitBreached {
			out = append(out, Breach{Dimension: DimLimit, Key: ls.Limit.Name, Value: ls.Limit.UtilizationPct, Ceiling: 100})
		}
	}
	return out
}

// Metrics flattens headline figures into named values.
func (r *Report) Metrics() map[string]float64 {
	m := map[string]float64{
		"active_exposure":          r.TotalExposure,
		"breaches":                 float64(len(r.Breaches())),
		"large_exposures":          float64(len(r.LargeExposures)),
		"customers_with_exposure":  float64(len(r.Customers)),
		"industries_with_exposure": float64(len(r.Industries)),
	}
	if len(r.Customers) > 0 {
		m["max_customer_share"] = r.Customers[0].Share
	}
	if len(r.Industries) > 0 {
		m["max_industry_share"] = r.Industries[0].Share
	}
	if len(r.Regions) > 0 {
		m["max_region_share"] = r.Regions[0].Share
	}
	return m
}

// Shares returns the slice for a dimension name, nil when unknown.
func (r *Report) Shares(dim string) []Share {
	switch dim {
	case DimCustomer:
		return r.Customers
	case DimIndustry:
		return r.Industries
	case DimRegion:
		return r.Regions
	case DimProduct:
		return r.Products
	}
	return nil
}
