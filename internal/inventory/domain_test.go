package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanMovementSaleClampsAtZero(t *testing.T) {
	product := Product{ID: 1, Stock: 3}

	plan, err := PlanMovement(product, -5, ReasonSale, false)
	require.NoError(t, err)
	require.Equal(t, int64(-3), plan.Delta)
	require.Equal(t, int64(0), plan.ResultingStock)
	require.Equal(t, int64(2), plan.Shortfall)
	require.True(t, plan.Clamped())
}

func TestPlanMovementSaleWithinStock(t *testing.T) {
	plan, err := PlanMovement(Product{ID: 1, Stock: 10}, -4, ReasonSale, false)
	require.NoError(t, err)
	require.Equal(t, int64(-4), plan.Delta)
	require.Equal(t, int64(6), plan.ResultingStock)
	require.False(t, plan.Clamped())
}

func TestPlanMovementAdjustmentNeverClamps(t *testing.T) {
	_, err := PlanMovement(Product{ID: 1, Stock: 3}, -5, ReasonAdjustment, false)
	require.ErrorIs(t, err, ErrNegativeStock)

	plan, err := PlanMovement(Product{ID: 1, Stock: 3}, -5, ReasonAdjustment, true)
	require.NoError(t, err)
	require.Equal(t, int64(-5), plan.Delta)
	require.Equal(t, int64(-2), plan.ResultingStock)
	require.False(t, plan.Clamped())
}

func TestPlanMovementReceiving(t *testing.T) {
	plan, err := PlanMovement(Product{ID: 1, Stock: 2}, 15, ReasonReceiving, false)
	require.NoError(t, err)
	require.Equal(t, int64(15), plan.Delta)
	require.Equal(t, int64(17), plan.ResultingStock)
}

func TestPlanMovementRejectsZeroAndUnknownReason(t *testing.T) {
	_, err := PlanMovement(Product{ID: 1, Stock: 2}, 0, ReasonSale, false)
	require.ErrorIs(t, err, ErrZeroDelta)

	_, err = PlanMovement(Product{ID: 1, Stock: 2}, 1, Reason("transfer"), false)
	require.ErrorIs(t, err, ErrInvalidReason)
}

func TestReplayReconciles(t *testing.T) {
	movements := []StockMovement{
		{Delta: 10, ResultingStock: 10},
		{Delta: -4, ResultingStock: 6},
		{Delta: 15, ResultingStock: 21},
		{Delta: -21, ResultingStock: 0},
	}
	stock, err := Replay(movements)
	require.NoError(t, err)
	require.Equal(t, int64(0), stock)
}

func TestReplayDetectsDivergence(t *testing.T) {
	movements := []StockMovement{
		{Delta: 10, ResultingStock: 10},
		{Delta: -4, ResultingStock: 5},
	}
	_, err := Replay(movements)
	require.Error(t, err)
}
