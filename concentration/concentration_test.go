package concentration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/creditrisk/config"
	"github.com/rustyeddy/creditrisk/credit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bal(v float64) *float64 { return &v }

func newAnalyzer() *Analyzer {
	return New(config.Default(), zerolog.Nop())
}

func book() *credit.Snapshot {
	return &credit.Snapshot{
		TakenAt: day(2024, 6, 30),
		Customers: []credit.Customer{
			{ID: 1, Name: "Alpha", Industry: "Automotive", Region: "North", Rating: credit.BB},
			{ID: 2, Name: "Beta", Industry: "Automotive", Region: "South", Rating: credit.A},
			{ID: 3, Name: "Gamma", Industry: "Retail", Region: "North", Rating: credit.BBB},
			{ID: 4, Name: "Delta", Industry: "Energy", Region: "South", Rating: credit.AA},
			{ID: 5, Name: "Epsilon", Industry: "Retail", Region: "South", Rating: credit.B},
		},
		Contracts: []credit.Contract{
			{ID: 10, CustomerID: 1, ProductType: "term_loan", CreditLimit: 500, OutstandingBalance: bal(400), CollateralValue: 300, Status: credit.StatusActive},
			{ID: 11, CustomerID: 2, ProductType: "term_loan", CreditLimit: 400, OutstandingBalance: bal(300), Status: credit.StatusActive},
			{ID: 12, CustomerID: 3, ProductType: "credit_line", CreditLimit: 200, OutstandingBalance: bal(150), Status: credit.StatusActive},
			{ID: 13, CustomerID: 4, ProductType: "mortgage", CreditLimit: 200, OutstandingBalance: bal(150), Status: credit.StatusActive},
			{ID: 14, CustomerID: 5, ProductType: "mortgage", CreditLimit: 100, OutstandingBalance: bal(900), Status: credit.StatusDefaulted},
			{ID: 15, CustomerID: 5, ProductType: "mortgage", CreditLimit: 100, Status: credit.StatusActive},
		},
		Limits: []credit.RiskLimit{
			{ID: 1, Type: credit.LimitIndustry, Name: "Auto", ReferenceValue: "Automotive", Amount: 800},
			{ID: 2, Type: credit.LimitCustomer, Name: "Alpha single", ReferenceID: 1, Amount: 350},
			{ID: 3, Type: credit.LimitTotal, Name: "Book", Amount: 1000, WarningPct: 90, CriticalPct: 99},
			{ID: 4, Type: credit.LimitRegion, Name: "South", ReferenceValue: "South", Amount: 0},
			{ID: 5, Type: credit.LimitProduct, Name: "Expired", ReferenceValue: "term_loan", Amount: 100, ValidTo: timePtr(day(2023, 12, 31))},
			{ID: 6, Type: "desk", Name: "Unknown", Amount: 10},
		},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSharesUseActiveOutstanding(t *testing.T) {
	t.Parallel()

	r := newAnalyzer().Analyze(book())
	assert.Equal(t, 1000.0, r.TotalExposure)

	require.Len(t, r.Industries, 3)
	assert.Equal(t, "Automotive", r.Industries[0].Key)
	assert.InDelta(t, 70.0, r.Industries[0].Share, 1e-9)
	assert.True(t, r.Industries[0].Breached)

	// Energy and Retail tie at 150, ascending key decides
	assert.Equal(t, "Energy", r.Industries[1].Key)
	assert.Equal(t, "Retail", r.Industries[2].Key)
	assert.False(t, r.Industries[1].Breached)
}

func TestIndustrySharesSumTo100(t *testing.T) {
	t.Parallel()

	for _, dim := range []string{DimCustomer, DimIndustry, DimRegion, DimProduct} {
		r := newAnalyzer().Analyze(book())
		var sum float64
		for _, s := range r.Shares(dim) {
			sum += s.Share
		}
		assert.InDelta(t, 100.0, sum, 1e-9, dim)
	}
}

func TestCustomerSharesAndCeiling(t *testing.T) {
	t.Parallel()

	r := newAnalyzer().Analyze(book())
	require.Len(t, r.Customers, 4)
	assert.Equal(t, int64(1), r.Customers[0].ID)
	assert.InDelta(t, 40.0, r.Customers[0].Share, 1e-9)
	assert.True(t, r.Customers[0].Breached)

	// 3 and 4 tie at 15 %, ascending id decides
	assert.Equal(t, int64(3), r.Customers[2].ID)
	assert.Equal(t, int64(4), r.Customers[3].ID)
	assert.True(t, r.Customers[3].Breached)
}

func TestTopNRankedByNetExposure(t *testing.T) {
	t.Parallel()

	r := newAnalyzer().Analyze(book())
	require.Len(t, r.Top, 4)

	// Alpha has the largest gross but 300 collateral, net 100
	assert.Equal(t, int64(2), r.Top[0].CustomerID)
	assert.Equal(t, 300.0, r.Top[0].Net)
	assert.Equal(t, int64(3), r.Top[1].CustomerID)
	assert.Equal(t, int64(4), r.Top[2].CustomerID)
	assert.Equal(t, int64(1), r.Top[3].CustomerID)
	assert.Equal(t, 100.0, r.Top[3].Net)
	assert.InDelta(t, 80.0, r.Top[3].LimitUtilization, 1e-9)

	a, err := newAnalyzer().WithTopN(2)
	require.NoError(t, err)
	assert.Len(t, a.Analyze(book()).Top, 2)
}

func TestWithTopNRejectsNonPositive(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, -3} {
		_, err := newAnalyzer().WithTopN(n)
		assert.ErrorIs(t, err, credit.ErrInvalidInput)
	}
}

func TestMatrix(t *testing.T) {
	t.Parallel()

	m := newAnalyzer().Analyze(book()).Matrix
	assert.Equal(t, []string{"Automotive", "Energy", "Retail"}, m.Industries)
	assert.Equal(t, []string{"North", "South"}, m.Regions)
	assert.Equal(t, 400.0, m.Cell("Automotive", "North"))
	assert.Equal(t, 300.0, m.Cell("Automotive", "South"))
	assert.Equal(t, 0.0, m.Cell("Energy", "North"))
	assert.Equal(t, 0.0, m.Cell("Mining", "North"))
	assert.Equal(t, []float64{700, 150, 150}, m.RowTotals)
	assert.Equal(t, []float64{550, 450}, m.ColTotals)
	assert.InDelta(t, 40.0, m.Pct[0][0], 1e-9)

	var sum float64
	for _, v := range m.RowTotals {
		sum += v
	}
	assert.Equal(t, m.Total, sum)
}

func TestLargeExposures(t *testing.T) {
	t.Parallel()

	r := newAnalyzer().Analyze(book())
	require.Len(t, r.LargeExposures, 4)
	assert.Equal(t, "Alpha", r.LargeExposures[0].Name)
	assert.True(t, r.LargeExposures[0].Regulatory)
	assert.True(t, r.LargeExposures[2].Regulatory)

	cfg := config.Default()
	cfg.Concentration.LargeExposureReportingPct = 20
	cfg.Concentration.LargeExposureRegulatoryPct = 35
	r = New(cfg, zerolog.Nop()).Analyze(book())
	require.Len(t, r.LargeExposures, 2)
	assert.True(t, r.LargeExposures[0].Regulatory)
	assert.False(t, r.LargeExposures[1].Regulatory)
}

func TestLimitsRecomputedFromLiveExposure(t *testing.T) {
	t.Parallel()

	snap := book()
	// stored values must be ignored
	snap.Limits[0].Utilization = 1
	snap.Limits[0].Breached = true

	r := newAnalyzer().Analyze(snap)
	require.Len(t, r.Limits, 5)

	byID := map[int64]LimitStatus{}
	for _, ls := range r.Limits {
		byID[ls.Limit.ID] = ls
	}

	auto := byID[1]
	assert.Equal(t, 700.0, auto.Limit.Utilization)
	assert.Equal(t, 87.5, auto.Limit.UtilizationPct)
	assert.False(t, auto.Limit.Breached)
	assert.Equal(t, LimitWarning, auto.State)

	alpha := byID[2]
	assert.True(t, alpha.Limit.Breached)
	assert.Equal(t, 50.0, alpha.Limit.BreachAmount)
	assert.Equal(t, LimitBreached, alpha.State)

	total := byID[3]
	assert.Equal(t, 100.0, total.Limit.UtilizationPct)
	assert.Equal(t, LimitCritical, total.State)

	zero := byID[4]
	assert.Equal(t, 0.0, zero.Limit.UtilizationPct)
	assert.True(t, zero.Limit.Breached)

	expired := byID[5]
	assert.False(t, expired.Active)

	require.Len(t, r.Warnings, 1)
	assert.Equal(t, "risk_limit", r.Warnings[0].Entity)
}

func TestState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		util float64
		want LimitState
	}{
		{0, LimitOK},
		{79.99, LimitOK},
		{80, LimitWarning},
		{95, LimitCritical},
		{100, LimitCritical},
		{100.01, LimitBreached},
	}
	for _, tt := range tests {
		l := credit.RiskLimit{Amount: 100}.WithUtilization(tt.util)
		assert.Equal(t, tt.want, State(l), "util %v", tt.util)
	}
}

func TestBreaches(t *testing.T) {
	t.Parallel()

	b := newAnalyzer().Analyze(book()).Breaches()

	dims := map[string]int{}
	for _, x := range b {
		dims[x.Dimension]++
	}
	assert.Equal(t, 4, dims[DimCustomer])
	assert.Equal(t, 1, dims[DimIndustry])
	assert.Equal(t, 2, dims[DimRegion])
	assert.Equal(t, 1, dims[DimProduct])
	// customer limit and zero-amount region limit
	assert.Equal(t, 2, dims[DimLimit])
}

func TestEmptyBook(t *testing.T) {
	t.Parallel()

	r := newAnalyzer().Analyze(&credit.Snapshot{})
	assert.Equal(t, 0.0, r.TotalExposure)
	assert.Empty(t, r.Industries)
	assert.Empty(t, r.Top)
	assert.Empty(t, r.Breaches())
	assert.Equal(t, 0.0, r.Metrics()["active_exposure"])
}

type stubSource struct{ snap *credit.Snapshot }

func (s stubSource) Snapshot(context.Context) (*credit.Snapshot, error) { return s.snap, nil }

func TestRunIsRepeatable(t *testing.T) {
	t.Parallel()

	a := newAnalyzer()
	r1, err := a.Run(context.Background(), stubSource{book()})
	require.NoError(t, err)
	r2, err := a.Run(context.Background(), stubSource{book()})
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}
