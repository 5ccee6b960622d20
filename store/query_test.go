package store

import (
	"context"
	"testing"

	"github.com/rustyeddy/creditrisk/credit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCustomer(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()

	c, err := s.GetCustomer(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Hafen Immobilien AG", c.Name)
	assert.Equal(t, "Real Estate", c.Industry)
	assert.Equal(t, credit.A, c.Rating)
	assert.Equal(t, credit.RiskLow, c.RiskClass)
	assert.Equal(t, credit.SegmentCorporate, c.Segment)

	_, err = s.GetCustomer(ctx, 99)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListQueries(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 3)

	contracts, err := s.ListContractsByCustomer(ctx, 3)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, credit.StatusDefaulted, contracts[0].Status)

	payments, err := s.ListPayments(ctx, 101)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].DueDate.Before(payments[1].DueDate))

	changes, err := s.ListRatingChangesSince(ctx, day(2024, 5, 1))
	require.NoError(t, err)
	assert.Len(t, changes, 1)

	changes, err = s.ListRatingChangesSince(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestAppendProvisionsAllOrNothing(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()
	asOf := day(2024, 6, 30)
	prior := 10.0

	first := []credit.Provision{
		{RunID: "run-1", ContractID: 101, AsOf: asOf, Stage: credit.Stage2, Amount: 120, PriorAmount: &prior, Delta: 110},
		{RunID: "run-1", ContractID: 102, AsOf: asOf, Stage: credit.Stage1, Amount: 40},
	}
	require.NoError(t, s.AppendProvisions(ctx, first))

	got, err := s.ListProvisions(ctx, 101)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, credit.Stage2, got[0].Stage)
	assert.Len(t, got[0].ID, 26)
	require.NotNil(t, got[0].PriorAmount)
	assert.Equal(t, 10.0, *got[0].PriorAmount)
	assert.True(t, got[0].AsOf.Equal(asOf))

	// a duplicate (contract, as-of) rolls back the whole batch
	second := []credit.Provision{
		{RunID: "run-2", ContractID: 103, AsOf: asOf, Stage: credit.Stage3, Amount: 46800},
		{RunID: "run-2", ContractID: 101, AsOf: asOf, Stage: credit.Stage2, Amount: 130},
	}
	err = s.AppendProvisions(ctx, second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contract 101")

	got, err = s.ListProvisions(ctx, 103)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestChangeRating(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()
	at := day(2024, 6, 15)

	rc, err := s.ChangeRating(ctx, 1, credit.B, "covenant breach", "analyst", at)
	require.NoError(t, err)
	assert.Equal(t, credit.BB, rc.OldRating)
	assert.Equal(t, credit.B, rc.NewRating)
	assert.True(t, rc.Downgrade())

	c, err := s.GetCustomer(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, credit.B, c.Rating)

	changes, err := s.ListRatingChangesSince(ctx, at)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, rc.ID, changes[0].ID)

	_, err = s.ChangeRating(ctx, 1, credit.B, "", "", at)
	assert.ErrorIs(t, err, credit.ErrInvalidInput)

	_, err = s.ChangeRating(ctx, 1, "B+", "", "", at)
	assert.ErrorIs(t, err, credit.ErrInvalidInput)

	_, err = s.ChangeRating(ctx, 42, credit.A, "", "", at)
	assert.Error(t, err)
}

func TestUpdateRiskLimitUtilization(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	l := snap.Limits[0].WithUtilization(430000)
	require.NoError(t, s.UpdateRiskLimitUtilization(ctx, []credit.RiskLimit{l}))

	snap, err = s.Snapshot(ctx)
	require.NoError(t, err)
	got := snap.Limits[0]
	assert.Equal(t, 430000.0, got.Utilization)
	assert.Equal(t, 107.5, got.UtilizationPct)
	assert.True(t, got.Breached)
	assert.Equal(t, 30000.0, got.BreachAmount)
	assert.Equal(t, 400000.0, got.Amount)

	err = s.UpdateRiskLimitUtilization(ctx, []credit.RiskLimit{{ID: 999}})
	assert.Error(t, err)
}

func TestAppendRatingChange(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.AppendRatingChange(ctx, credit.RatingChange{
		CustomerID: 2, OldRating: credit.A, NewRating: credit.AA, ChangedAt: day(2024, 6, 20),
	}))

	changes, err := s.ListRatingChangesSince(ctx, day(2024, 6, 1))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].Downgrade())
}
