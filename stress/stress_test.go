package stress

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

func ptr[T any](v T) *T { return &v }

var takenAt = time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

func newEngine() *Engine {
	return New(config.Default(), zerolog.Nop())
}

func single(pd, lgd, ead float64) *credit.Snapshot {
	return &credit.Snapshot{
		TakenAt:   takenAt,
		Customers: []credit.Customer{{ID: 1, Industry: "Retail", Rating: credit.BB}},
		Contracts: []credit.Contract{{
			ID: 1, CustomerID: 1, Status: credit.StatusActive,
			OutstandingBalance: ptr(ead), PD: pd, LGD: lgd, EAD: ead,
		}},
	}
}

func fixture() *credit.Snapshot {
	return &credit.Snapshot{
		TakenAt: takenAt,
		Customers: []credit.Customer{
			{ID: 1, Industry: "Automotive", Rating: credit.BB},
			{ID: 2, Industry: "Real Estate", Rating: credit.A},
			{ID: 3, Industry: "Automotive", Rating: credit.B},
		},
		Contracts: []credit.Contract{
			{ID: 10, CustomerID: 1, Status: credit.StatusActive, OutstandingBalance: ptr(1000.0), PD: 0.02, LGD: 0.5, EAD: 1000},
			{ID: 11, CustomerID: 2, Status: credit.StatusActive, OutstandingBalance: ptr(2000.0), LGD: 0.4},
			{ID: 12, CustomerID: 3, Status: credit.StatusActive, OutstandingBalance: ptr(500.0), PD: 0.05, LGD: 0.6, EAD: 500},
			{ID: 13, CustomerID: 3, Status: credit.StatusClosed, OutstandingBalance: ptr(9000.0), PD: 0.5, LGD: 1, EAD: 9000},
		},
		Provisions: []credit.Provision{
			{ContractID: 12, AsOf: takenAt.AddDate(0, -3, 0), Stage: credit.Stage2},
		},
	}
}

func TestSevereRecession(t *testing.T) {
	t.Parallel()

	r, err := newEngine().ApplyNamed(single(0.02, 0.45, 100_000), "recession_severe")
	require.NoError(t, err)
	require.Len(t, r.Contracts, 1)

	c := r.Contracts[0]
	assert.InDelta(t, 0.05, c.StressedPD, 1e-12)
	assert.InDelta(t, 2250.0, c.StressedEL, 1e-6)
	assert.InDelta(t, 900.0, r.BaselineEL, 1e-6)
	assert.InDelta(t, 1350.0, r.Delta, 1e-6)
	assert.InDelta(t, 150.0, r.DeltaPct, 1e-6)

	assert.InDelta(t, 100_000.0, r.BaselineRWA, 1e-6)
	assert.InDelta(t, 145_000.0, r.StressedRWA, 1e-6)
	assert.InDelta(t, 3600.0, r.CapitalImpact, 1e-6)

	assert.Equal(t, 0.0, r.BaselineNPLRatio)
	assert.InDelta(t, 3.0, r.StressedNPLRatio, 1e-12)
	assert.Equal(t, credit.Stage2, c.StressedStage)
	assert.Equal(t, 1, r.Migration.OneToTwo)
}

func TestIdentityScenarioMatchesBaseline(t *testing.T) {
	t.Parallel()

	s, err := Custom("identity", 1, "", 0)
	require.NoError(t, err)

	r, err := newEngine().Apply(fixture(), s)
	require.NoError(t, err)
	assert.Equal(t, r.BaselineEL, r.StressedEL)
	assert.Equal(t, 0.0, r.Delta)
	assert.Equal(t, r.BaselineRWA, r.StressedRWA)
	assert.Equal(t, 0.0, r.CapitalImpact)
	assert.Equal(t, 0, r.Migration.Total())
	assert.Equal(t, r.BaselineNPLRatio, r.StressedNPLRatio)
}

func TestIndustryScope(t *testing.T) {
	t.Parallel()

	r, err := newEngine().ApplyNamed(fixture(), "industry_auto")
	require.NoError(t, err)
	require.Len(t, r.Contracts, 3)

	byID := map[int64]ContractResult{}
	for _, c := range r.Contracts {
		byID[c.ContractID] = c
	}
	assert.True(t, byID[10].InScope)
	assert.InDelta(t, 0.06, byID[10].StressedPD, 1e-12)
	assert.False(t, byID[11].InScope)
	assert.Equal(t, byID[11].PD, byID[11].StressedPD)

	// contract pd 0 falls back to the grade table; ead 0 falls back to the balance
	assert.Equal(t, 0.0012, byID[11].PD)
	assert.Equal(t, 2000.0, byID[11].EAD)

	// 0.05 x 3 crosses the stage 3 pd from a stage 2 baseline
	assert.Equal(t, credit.Stage2, byID[12].BaselineStage)
	assert.Equal(t, credit.Stage3, byID[12].StressedStage)
	assert.Equal(t, 1, r.Migration.TwoToThree)
	assert.Equal(t, 1, r.Migration.OneToTwo)

	require.Len(t, r.Industries, 2)
	assert.Equal(t, "Automotive", r.Industries[0].Key)
	assert.Equal(t, 2, r.Industries[0].Contracts)
	assert.InDelta(t, 0.0, r.Industries[1].Delta, 1e-12)

	require.Len(t, r.Ratings, 3)
	assert.Equal(t, "A", r.Ratings[0].Key)
	assert.Equal(t, "BB", r.Ratings[1].Key)
	assert.Equal(t, "B", r.Ratings[2].Key)
}

func TestBaselineStageIgnoresLaterProvisions(t *testing.T) {
	t.Parallel()

	snap := fixture()
	snap.Provisions = append(snap.Provisions,
		credit.Provision{ContractID: 10, AsOf: takenAt.AddDate(0, 1, 0), Stage: credit.Stage3},
		credit.Provision{ContractID: 12, AsOf: takenAt, Stage: credit.Stage3},
	)

	r, err := newEngine().ApplyNamed(snap, "recession_mild")
	require.NoError(t, err)

	byID := map[int64]ContractResult{}
	for _, c := range r.Contracts {
		byID[c.ContractID] = c
	}
	assert.Equal(t, credit.Stage1, byID[10].BaselineStage)
	// a provision dated on the as-of day is in force
	assert.Equal(t, credit.Stage3, byID[12].BaselineStage)
}

func TestStressedPDIsCapped(t *testing.T) {
	t.Parallel()

	s, err := Custom("extreme", 10, "", 0)
	require.NoError(t, err)
	r, err := newEngine().Apply(single(0.4, 1, 100), s)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Contracts[0].StressedPD)
	assert.InDelta(t, 100.0, r.StressedEL, 1e-9)
	// pd ratio 2.5 stays under the cap of 3
	assert.InDelta(t, 145.0, r.StressedRWA, 1e-9)
}

func TestAddOnShiftsNPLOnly(t *testing.T) {
	t.Parallel()

	snap := single(0.02, 0.45, 10)
	snap.Contracts = append(snap.Contracts, credit.Contract{
		ID: 2, CustomerID: 1, Status: credit.StatusDefaulted, OutstandingBalance: ptr(990.0),
	})

	s, err := Custom("npl", 1, "", 0.03)
	require.NoError(t, err)
	r, err := newEngine().Apply(snap, s)
	require.NoError(t, err)
	assert.InDelta(t, 99.0, r.BaselineNPLRatio, 1e-9)
	assert.Equal(t, 100.0, r.StressedNPLRatio)
	assert.Equal(t, r.BaselineEL, r.StressedEL)
}

func TestApplyDoesNotMutateSnapshot(t *testing.T) {
	t.Parallel()

	snap := fixture()
	before := append([]credit.Contract(nil), snap.Contracts...)
	_, err := newEngine().ApplyNamed(snap, "combined_severe")
	require.NoError(t, err)
	assert.Equal(t, before, snap.Contracts)
}

func TestApplyAll(t *testing.T) {
	t.Parallel()

	rs, err := newEngine().ApplyAll(fixture())
	require.NoError(t, err)
	require.Len(t, rs, 6)

	keys := make([]string, len(rs))
	for i, r := range rs {
		keys[i] = r.Scenario.Key
		assert.GreaterOrEqual(t, r.StressedEL, r.BaselineEL, r.Scenario.Key)
	}
	assert.Equal(t, []string{
		"interest_rate_200bps", "recession_mild", "recession_severe",
		"industry_auto", "industry_real_estate", "combined_severe",
	}, keys)
}

func TestSensitivity(t *testing.T) {
	t.Parallel()

	e := newEngine()
	base, err := e.cfg.Scenario("recession_mild")
	require.NoError(t, err)

	pts, err := e.Sensitivity(single(0.02, 0.5, 1000), base, []float64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, 0.0, pts[0].Delta)
	assert.InDelta(t, 10.0, pts[1].Delta, 1e-9)
	assert.InDelta(t, 20.0, pts[2].Delta, 1e-9)
	assert.InDelta(t, 200.0, pts[2].DeltaPct, 1e-9)

	_, err = e.Sensitivity(single(0.02, 0.5, 1000), base, nil)
	assert.ErrorIs(t, err, credit.ErrInvalidInput)
	_, err = e.Sensitivity(single(0.02, 0.5, 1000), base, []float64{1, 0})
	assert.ErrorIs(t, err, credit.ErrInvalidInput)
}

func TestInvalidScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"empty name", func() error { _, err := Custom("", 1, "", 0); return err }, credit.ErrInvalidInput},
		{"zero multiplier", func() error { _, err := Custom("x", 0, "", 0); return err }, credit.ErrInvalidInput},
		{"negative multiplier", func() error { _, err := Custom("x", -1, "", 0); return err }, credit.ErrInvalidInput},
		{"negative add-on", func() error { _, err := Custom("x", 1, "", -0.01); return err }, credit.ErrInvalidInput},
		{"empty key", func() error { _, err := newEngine().ApplyNamed(fixture(), ""); return err }, credit.ErrInvalidInput},
		{"unknown key", func() error { _, err := newEngine().ApplyNamed(fixture(), "meteor"); return err }, credit.ErrUnknownScenario},
		{"apply unchecked", func() error {
			_, err := newEngine().Apply(fixture(), config.Scenario{Key: "raw", PDMultiplier: -2})
			return err
		}, credit.ErrInvalidInput},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, tt.run(), tt.want)
		})
	}
}

func TestMissingGradeIsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	delete(cfg.Ratings.RiskWeight, credit.BB)
	_, err := New(cfg, zerolog.Nop()).ApplyNamed(single(0.02, 0.45, 100), "recession_mild")
	assert.ErrorIs(t, err, credit.ErrUnknownGrade)
	assert.ErrorIs(t, err, credit.ErrInvalidConfig)
}

type staticSource struct{ snap *credit.Snapshot }

func (s staticSource) Snapshot(context.Context) (*credit.Snapshot, error) { return s.snap, nil }

func TestRun(t *testing.T) {
	t.Parallel()

	s, err := Custom("flat", 1.5, "", 0)
	require.NoError(t, err)
	r, err := newEngine().Run(context.Background(), staticSource{fixture()}, s)
	require.NoError(t, err)
	assert.Equal(t, takenAt, r.AsOf)
	assert.Equal(t, 3500.0, r.Exposure)
	assert.InDelta(t, 1.5*r.BaselineEL, r.StressedEL, 1e-9)
}
