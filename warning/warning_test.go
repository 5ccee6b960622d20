package warning

import (
	"context"
	"strconv"
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

func ptr[T any](v T) *T { return &v }

var asOf = day(2024, 6, 30)

func newEngine() *Engine {
	return New(config.Default(), zerolog.Nop())
}

func contract(id, cust int64, limit, util, balance float64) credit.Contract {
	return credit.Contract{
		ID:                 id,
		CustomerID:         cust,
		ProductType:        "loan",
		CreditLimit:        limit,
		UtilizedLimit:      util,
		OutstandingBalance: ptr(balance),
		Status:             credit.StatusActive,
	}
}

func open(id, contractID int64, due time.Time) credit.Payment {
	return credit.Payment{ID: id, ContractID: contractID, DueDate: due, AmountDue: 10}
}

func fixture() *credit.Snapshot {
	closed := contract(106, 1, 100, 200, 50)
	closed.Status = credit.StatusClosed

	return &credit.Snapshot{
		TakenAt: day(2024, 7, 1),
		Customers: []credit.Customer{
			{ID: 1, Name: "Alpha", Industry: "Automotive", Region: "Bavaria", Rating: credit.BB, Creditworthiness: 70},
			{ID: 2, Name: "Beta", Industry: "Real Estate", Region: "Hamburg", Rating: credit.A, Creditworthiness: 80},
			{ID: 3, Name: "Gamma", Industry: "Food", Region: "Bavaria", Rating: credit.CCC, Creditworthiness: 25},
			{ID: 4, Name: "Delta", Industry: "Retail", Region: "Berlin", Rating: credit.BBB, Creditworthiness: 60},
			{ID: 5, Name: "Epsilon", Industry: "Retail", Region: "Berlin", Rating: credit.A, Creditworthiness: 65},
		},
		Contracts: []credit.Contract{
			contract(101, 1, 1000, 850, 400),
			contract(102, 2, 1000, 500, 300),
			contract(103, 3, 100, 100, 100),
			contract(104, 4, 1000, 100, 200),
			contract(105, 5, 0, 50, 0),
			closed,
		},
		Payments: []credit.Payment{
			open(1, 101, day(2024, 5, 1)),
			{ID: 2, ContractID: 102, DueDate: day(2024, 6, 1), PaidAt: ptr(day(2024, 6, 1))},
			open(3, 103, day(2024, 2, 1)),
			open(4, 103, day(2024, 3, 1)),
			open(5, 103, day(2024, 4, 1)),
			open(6, 103, day(2024, 5, 1)),
			open(7, 103, day(2024, 6, 1)),
			open(8, 106, day(2023, 12, 1)),
		},
		RatingChanges: []credit.RatingChange{
			{CustomerID: 3, OldRating: credit.B, NewRating: credit.CCC, ChangedAt: day(2024, 5, 20)},
			{CustomerID: 4, OldRating: credit.AAA, NewRating: credit.BBB, ChangedAt: day(2024, 6, 1)},
			{CustomerID: 5, OldRating: credit.BBB, NewRating: credit.A, ChangedAt: day(2024, 6, 1)},
			{CustomerID: 2, OldRating: credit.A, NewRating: credit.BB, ChangedAt: day(2024, 1, 1)},
		},
		Limits: []credit.RiskLimit{
			{ID: 1, Type: credit.LimitIndustry, Name: "auto", ReferenceValue: "Automotive", Amount: 380},
			{ID: 2, Type: credit.LimitTotal, Name: "book", Amount: 1200},
			{ID: 3, Type: credit.LimitRegion, Name: "bavaria", ReferenceValue: "Bavaria", Amount: 100, ValidTo: ptr(day(2023, 12, 31))},
		},
		Indicators: []credit.EconomicIndicator{
			{Date: day(2024, 5, 31), Region: "Bavaria", UnemploymentRate: 8, InsolvencyRate: 0.01, BusinessCycleIndex: 100},
			{Date: day(2024, 6, 30), Region: "Bavaria", UnemploymentRate: 7, InsolvencyRate: 0.01, BusinessCycleIndex: 90},
			{Date: day(2024, 6, 30), Region: "Hamburg", Industry: "Real Estate", UnemploymentRate: 20, BusinessCycleIndex: 100},
			{Date: day(2023, 1, 1), Region: "Berlin", UnemploymentRate: 20, BusinessCycleIndex: 100},
		},
	}
}

type key struct {
	sig    Signal
	sev    Severity
	entity string
}

func keys(alerts []Alert) []key {
	out := make([]key, len(alerts))
	for i, a := range alerts {
		out[i] = key{a.Signal, a.Severity, a.Entity}
	}
	return out
}

func TestScanFixture(t *testing.T) {
	t.Parallel()

	r, err := newEngine().Scan(fixture(), asOf)
	require.NoError(t, err)

	want := []key{
		{LimitBreach, Urgent, "limit:1"},
		{PaymentDelay, Urgent, "contract:103"},

		{CompoundRisk, Critical, "contract:101"},
		{CompoundRisk, Critical, "contract:103"},
		{ConcentrationBreach, Critical, "industry:Automotive"},
		{FinancialDeterioration, Critical, "customer:3"},
		{HighUtilization, Critical, "contract:103"},
		{RatingDowngrade, Critical, "customer:3"},
		{RatingDowngrade, Critical, "customer:4"},

		{ConcentrationBreach, Warning, "industry:Real Estate"},
		{LimitBreach, Warning, "limit:2"},
		{PaymentDelay, Warning, "contract:101"},
		{PaymentTrend, Warning, "contract:103"},

		{Economic, Info, "region:Bavaria:unemployment"},
		{HighUtilization, Info, "contract:101"},
	}
	assert.Equal(t, want, keys(r.Alerts))

	sum := r.Summary()
	assert.Equal(t, 15, sum.Total)
	assert.Equal(t, 2, sum.BySeverity[Urgent])
	assert.Equal(t, 7, sum.BySeverity[Critical])
	assert.Equal(t, 4, sum.BySeverity[Warning])
	assert.Equal(t, 2, sum.BySeverity[Info])
	assert.Equal(t, 2, sum.BySignal[CompoundRisk])

	m := r.Metrics()
	assert.Equal(t, 15.0, m["alerts"])
	assert.Equal(t, 2.0, m["alerts_urgent"])
	assert.Equal(t, 1.0, m["signal_economic"])

	assert.Len(t, r.Filter(Critical), 9)
	assert.Len(t, r.Filter(Info), 15)
}

func TestScanAlertDetails(t *testing.T) {
	t.Parallel()

	r, err := newEngine().Scan(fixture(), asOf)
	require.NoError(t, err)

	byID := make(map[string]Alert, len(r.Alerts))
	for _, a := range r.Alerts {
		byID[a.ID] = a
	}

	delay, ok := byID["payment_delay-contract:103-20240630"]
	require.True(t, ok)
	assert.Equal(t, 150.0, delay.Metric)
	assert.Equal(t, 30.0, delay.Threshold)
	assert.Equal(t, 100.0, delay.Exposure)
	assert.Equal(t, int64(3), delay.CustomerID)

	util := byID["high_utilization-contract:101-20240630"]
	assert.Equal(t, 85.0, util.Metric)
	assert.Equal(t, 400.0, util.Exposure)

	down := byID["rating_downgrade-customer:4-20240630"]
	assert.Equal(t, 3.0, down.Metric)
	assert.Equal(t, 200.0, down.Exposure)
	assert.Equal(t, int64(0), down.ContractID)

	compound := byID["compound_risk-contract:103-20240630"]
	assert.Equal(t, 3.0, compound.Metric)

	fin := byID["financial_deterioration-customer:3-20240630"]
	assert.Equal(t, 8.0, fin.Metric)

	trend := byID["payment_trend-contract:103-20240630"]
	assert.Equal(t, 100.0, trend.Metric)

	limit := byID["limit_breach-limit:1-20240630"]
	assert.Equal(t, 105.26, limit.Metric)
	assert.Equal(t, 400.0, limit.Exposure)

	econ := byID["economic-region:Bavaria:unemployment-20240630"]
	assert.InDelta(t, 7.5, econ.Metric, 1e-9)
}

func TestScanIsIdempotentAndOrderStable(t *testing.T) {
	t.Parallel()

	e := newEngine()
	first, err := e.Scan(fixture(), asOf)
	require.NoError(t, err)
	second, err := e.Scan(fixture(), asOf)
	require.NoError(t, err)
	assert.Equal(t, first.Alerts, second.Alerts)

	snap := fixture()
	reverse(snap.Customers)
	reverse(snap.Contracts)
	reverse(snap.Payments)
	reverse(snap.RatingChanges)
	reverse(snap.Limits)
	reverse(snap.Indicators)
	shuffled, err := e.Scan(snap, asOf)
	require.NoError(t, err)
	assert.Equal(t, first.Alerts, shuffled.Alerts)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func TestScanRejectsBadAsOf(t *testing.T) {
	t.Parallel()

	_, err := newEngine().Scan(fixture(), day(2024, 7, 2))
	assert.ErrorIs(t, err, credit.ErrInvalidInput)

	_, err = newEngine().Scan(fixture(), time.Time{})
	assert.ErrorIs(t, err, credit.ErrInvalidInput)
}

func TestDowngradeIsOrdinal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		old, new  credit.Grade
		wantAlert bool
		sev       Severity
	}{
		{"AAA to BBB", credit.AAA, credit.BBB, true, Critical},
		{"BBB to A", credit.BBB, credit.A, false, ""},
		{"A to BBB", credit.A, credit.BBB, true, Info},
		{"A to BB", credit.A, credit.BB, true, Warning},
		{"B to CCC", credit.B, credit.CCC, true, Critical},
		{"unchanged", credit.BB, credit.BB, false, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap := &credit.Snapshot{
				Customers: []credit.Customer{{ID: 1, Rating: tt.new, Creditworthiness: 90}},
				RatingChanges: []credit.RatingChange{
					{CustomerID: 1, OldRating: tt.old, NewRating: tt.new, ChangedAt: day(2024, 6, 1)},
				},
			}
			r, err := newEngine().Scan(snap, asOf)
			require.NoError(t, err)
			if !tt.wantAlert {
				assert.Empty(t, r.Alerts)
				return
			}
			require.Len(t, r.Alerts, 1)
			assert.Equal(t, RatingDowngrade, r.Alerts[0].Signal)
			assert.Equal(t, tt.sev, r.Alerts[0].Severity)
		})
	}
}

func TestDowngradeKeepsWorstInWindow(t *testing.T) {
	t.Parallel()

	snap := &credit.Snapshot{
		Customers: []credit.Customer{{ID: 1, Rating: credit.BBB, Creditworthiness: 90}},
		RatingChanges: []credit.RatingChange{
			{CustomerID: 1, OldRating: credit.AAA, NewRating: credit.AA, ChangedAt: day(2024, 4, 15)},
			{CustomerID: 1, OldRating: credit.AA, NewRating: credit.BBB, ChangedAt: day(2024, 6, 1)},
			{CustomerID: 1, OldRating: credit.AAA, NewRating: credit.D, ChangedAt: day(2024, 3, 1)},
			{CustomerID: 1, OldRating: credit.AAA, NewRating: credit.D, ChangedAt: day(2024, 7, 1)},
		},
	}
	r, err := newEngine().Scan(snap, asOf)
	require.NoError(t, err)
	require.Len(t, r.Alerts, 1)
	assert.Equal(t, 2.0, r.Alerts[0].Metric)
	assert.Equal(t, Warning, r.Alerts[0].Severity)
}

func TestDowngradeWindowBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		at        time.Time
		wantAlert bool
	}{
		{"first day of window", asOf.AddDate(0, 0, -90), true},
		{"day before window", asOf.AddDate(0, 0, -91), false},
		{"as-of afternoon", asOf.Add(15 * time.Hour), true},
		{"day after as-of", asOf.AddDate(0, 0, 1), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap := &credit.Snapshot{
				TakenAt:   asOf.AddDate(0, 0, 2),
				Customers: []credit.Customer{{ID: 1, Rating: credit.BBB, Creditworthiness: 90}},
				RatingChanges: []credit.RatingChange{
					{CustomerID: 1, OldRating: credit.AAA, NewRating: credit.BBB, ChangedAt: tt.at},
				},
			}
			r, err := newEngine().Scan(snap, asOf)
			require.NoError(t, err)
			if !tt.wantAlert {
				assert.Empty(t, r.Alerts)
				return
			}
			require.Len(t, r.Alerts, 1)
			assert.Equal(t, RatingDowngrade, r.Alerts[0].Signal)
		})
	}
}

func TestPaymentTrendWindowStart(t *testing.T) {
	t.Parallel()

	late := func(id int64, due time.Time) credit.Payment {
		return credit.Payment{ID: id, ContractID: 1, DueDate: due, PaidAt: ptr(due.AddDate(0, 0, 5)), AmountDue: 10, AmountPaid: 10}
	}

	tests := []struct {
		name      string
		first     time.Time
		wantAlert bool
	}{
		{"due on window start", day(2023, 12, 30), true},
		{"due before window", day(2023, 12, 29), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap := &credit.Snapshot{
				Customers: []credit.Customer{{ID: 1, Rating: credit.A, Creditworthiness: 90}},
				Contracts: []credit.Contract{contract(1, 1, 0, 0, 10)},
				Payments: []credit.Payment{
					late(1, tt.first),
					late(2, day(2024, 2, 1)),
					late(3, day(2024, 3, 1)),
				},
			}
			r, err := newEngine().Scan(snap, asOf)
			require.NoError(t, err)

			var trend []Alert
			for _, a := range r.Alerts {
				if a.Signal == PaymentTrend {
					trend = append(trend, a)
				}
			}
			if !tt.wantAlert {
				assert.Empty(t, trend)
				return
			}
			require.Len(t, trend, 1)
			assert.Equal(t, 100.0, trend[0].Metric)
		})
	}
}

func TestPaymentDelaySeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		days int
		want Severity
	}{
		{30, ""},
		{31, Warning},
		{60, Warning},
		{61, Critical},
		{90, Critical},
		{91, Urgent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(strconv.Itoa(tt.days), func(t *testing.T) {
			t.Parallel()
			snap := &credit.Snapshot{
				Customers: []credit.Customer{{ID: 1, Rating: credit.A, Creditworthiness: 90}},
				Contracts: []credit.Contract{contract(1, 1, 0, 0, 10)},
				Payments:  []credit.Payment{open(1, 1, asOf.AddDate(0, 0, -tt.days))},
			}
			r, err := newEngine().Scan(snap, asOf)
			require.NoError(t, err)

			var got Severity
			for _, a := range r.Alerts {
				if a.Signal == PaymentDelay {
					got = a.Severity
				}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaymentSettledAfterAsOfCountsAsOpen(t *testing.T) {
	t.Parallel()

	snap := &credit.Snapshot{
		Customers: []credit.Customer{{ID: 1, Rating: credit.A, Creditworthiness: 90}},
		Contracts: []credit.Contract{contract(1, 1, 0, 0, 10)},
		Payments: []credit.Payment{
			{ID: 1, ContractID: 1, DueDate: day(2024, 5, 1), PaidAt: ptr(day(2024, 7, 1))},
			{ID: 2, ContractID: 1, DueDate: day(2024, 8, 1)},
		},
	}
	r, err := newEngine().Scan(snap, asOf)
	require.NoError(t, err)

	var delays []Alert
	for _, a := range r.Alerts {
		if a.Signal == PaymentDelay {
			delays = append(delays, a)
		}
	}
	require.Len(t, delays, 1)
	assert.Equal(t, 60.0, delays[0].Metric)
}

func TestUtilizationSeverity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		limit, util float64
		want        Severity
	}{
		{100, 80, ""},
		{100, 81, Info},
		{100, 95, Warning},
		{100, 100, Critical},
		{100, 130, Critical},
		{0, 50, ""},
	}

	for _, tt := range tests {
		snap := &credit.Snapshot{
			Customers: []credit.Customer{{ID: 1, Rating: credit.A, Creditworthiness: 90}},
			Contracts: []credit.Contract{contract(1, 1, tt.limit, tt.util, 10)},
		}
		r, err := newEngine().Scan(snap, asOf)
		require.NoError(t, err)

		var got Severity
		for _, a := range r.Alerts {
			if a.Signal == HighUtilization {
				got = a.Severity
			}
		}
		assert.Equal(t, tt.want, got, "limit %v util %v", tt.limit, tt.util)
	}
}

func TestFinancialDeteriorationScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cw     float64
		grade  credit.Grade
		late   int
		want   Severity
		metric float64
	}{
		{"healthy", 55, credit.CCC, 5, "", 0},
		{"low cw only", 35, credit.BB, 0, Warning, 2},
		{"very low cw", 25, credit.BB, 0, Warning, 3},
		{"weak grade and low cw", 35, credit.CC, 0, Critical, 5},
		{"late payments only score zero", 45, credit.BB, 1, "", 0},
		{"many late payments", 45, credit.BB, 4, Warning, 2},
		{"weak grade with late payment", 45, credit.CCC, 1, Warning, 3},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			snap := &credit.Snapshot{
				Customers: []credit.Customer{{ID: 1, Rating: tt.grade, Creditworthiness: tt.cw}},
				Contracts: []credit.Contract{contract(1, 1, 0, 0, 10)},
			}
			for i := 0; i < tt.late; i++ {
				snap.Payments = append(snap.Payments, credit.Payment{
					ID:         int64(i + 1),
					ContractID: 1,
					DueDate:    day(2023, time.Month(i+1), 1),
					PaidAt:     ptr(day(2023, time.Month(i+3), 1)),
				})
			}
			r, err := newEngine().Scan(snap, asOf)
			require.NoError(t, err)

			var got *Alert
			for i, a := range r.Alerts {
				if a.Signal == FinancialDeterioration {
					got = &r.Alerts[i]
				}
			}
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Severity)
			assert.Equal(t, tt.metric, got.Metric)
		})
	}
}

type staticSource struct{ snap *credit.Snapshot }

func (s staticSource) Snapshot(context.Context) (*credit.Snapshot, error) { return s.snap, nil }

func TestRun(t *testing.T) {
	t.Parallel()

	r, err := newEngine().Run(context.Background(), staticSource{fixture()}, asOf)
	require.NoError(t, err)
	assert.Len(t, r.Alerts, 15)
	assert.Equal(t, asOf, r.AsOf)
}
