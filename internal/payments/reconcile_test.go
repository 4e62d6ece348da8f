package payments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateMatchesWithinTolerance(t *testing.T) {
	plan := Plan{
		Cash:   SubPlan{Amount: 4000},
		Card:   SubPlan{Amount: 3000},
		Cheque: SubPlan{Amount: 2999.5},
	}
	result := Validate(plan, 10000)
	require.True(t, result.Matches)
	require.InDelta(t, 0.5, result.Difference, 0.0001)
}

func TestValidateFailsAtExactlyOneUnit(t *testing.T) {
	// The boundary is strict: |diff| < 1 passes, |diff| == 1 fails.
	plan := Plan{
		Cash:   SubPlan{Amount: 4000},
		Card:   SubPlan{Amount: 3000},
		Cheque: SubPlan{Amount: 2999},
	}
	result := Validate(plan, 10000)
	require.False(t, result.Matches)
	require.InDelta(t, 1, result.Difference, 0.0001)

	plan.Cheque.Amount = 2999.01
	result = Validate(plan, 10000)
	require.True(t, result.Matches)
	require.InDelta(t, 0.99, result.Difference, 0.0001)
}

func TestValidateIsFloatSafe(t *testing.T) {
	plan := Plan{
		Cash: SubPlan{Amount: 0.1},
		Card: SubPlan{Amount: 0.2},
	}
	result := Validate(plan, 0.3)
	require.True(t, result.Matches)
	require.Zero(t, result.Difference)
}

func TestChequeTotalPrefersReceivedLines(t *testing.T) {
	plan := Plan{
		Cheque: SubPlan{Amount: 5000},
		ChequeLines: []ChequeLine{
			{Amount: 2000, Bank: "X", Number: "001"},
			{Amount: 2500, Bank: "X", Number: "002"},
		},
	}
	// Not yet received: the declared aggregate counts.
	require.InDelta(t, 5000, ChequeTotal(plan), 0.0001)

	plan.ChequesIn = true
	require.InDelta(t, 4500, ChequeTotal(plan), 0.0001)
}

func TestMismatchError(t *testing.T) {
	plan := Plan{Cash: SubPlan{Amount: 500}}
	err := MismatchError(plan, 1000)
	require.NotNil(t, err)
	require.InDelta(t, 500, err.Difference, 0.0001)

	require.Nil(t, MismatchError(Plan{Cash: SubPlan{Amount: 1000}}, 1000))
}

func TestAverageMaturityIsAmountWeighted(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lines := []ChequeLine{
		{Amount: 1000, DueDate: now.AddDate(0, 0, 30)},
		{Amount: 3000, DueDate: now.AddDate(0, 0, 90)},
	}
	// (1000*30 + 3000*90) / 4000 = 75
	require.InDelta(t, 75, AverageMaturity(lines, now), 0.01)
}

func TestAverageMaturityClampsPastDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	lines := []ChequeLine{
		{Amount: 1000, DueDate: now.AddDate(0, 0, -15)},
		{Amount: 1000, DueDate: now.AddDate(0, 0, 60)},
	}
	require.InDelta(t, 30, AverageMaturity(lines, now), 0.01)
}

func TestMaturityAdvisoryFlagsLongMaturities(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	plan := Plan{
		ChequesIn: true,
		ChequeLines: []ChequeLine{
			{Amount: 1000, DueDate: now.AddDate(0, 0, 120)},
		},
	}
	advisory := Maturity(plan, now)
	require.True(t, advisory.Flagged)
	require.InDelta(t, 120, advisory.AverageDays, 0.01)

	plan.ChequeLines[0].DueDate = now.AddDate(0, 0, 45)
	require.False(t, Maturity(plan, now).Flagged)
}

func TestCloseCheck(t *testing.T) {
	require.Nil(t, CloseCheck(10000, 9500, 500))
	require.Nil(t, CloseCheck(10000, 10000, 0))

	err := CloseCheck(10000, 9000, 500)
	require.NotNil(t, err)
	require.InDelta(t, 500, err.Difference, 0.0001)
}
