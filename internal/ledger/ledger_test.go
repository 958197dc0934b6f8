package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance(t *testing.T) {
	summary := Balance([]Entry{
		{Amount: 500, Type: Credit},
		{Amount: 120, Type: Debit},
		{Amount: 80, Type: Debit},
		{Amount: 50, Type: Credit},
	})
	assert.Equal(t, Summary{Balance: 350, Credits: 550}, summary)
	assert.Equal(t, Summary{}, Balance(nil))
}

func TestValidType(t *testing.T) {
	assert.True(t, ValidType("credit"))
	assert.True(t, ValidType("debit"))
	assert.False(t, ValidType("refund"))
	assert.False(t, ValidType(""))
}

func TestStats(t *testing.T) {
	entries := []Entry{
		{ID: "e1", Amount: 1000, Type: Credit, Date: "2026-01-02"},
		{ID: "e2", Amount: 250, Type: Debit, Date: "2026-01-02"},
		{ID: "e3", Amount: 100, Type: Debit, Date: "2026-01-05"},
		{ID: "e4", Amount: 300, Type: Credit, Date: "2026-01-07"},
		{ID: "e5", Amount: 50, Type: Debit, Date: "2026-01-07"},
		{ID: "e6", Amount: 200, Type: Debit, Date: "2026-01-09"},
	}

	stats := Stats(entries)

	assert.Equal(t, float64(1300), stats.TotalRevenue)
	assert.Equal(t, float64(600), stats.TotalExpenses)
	assert.Equal(t, float64(700), stats.NetProfit)
	assert.InDelta(t, 53.846, stats.ProfitMargin, 0.001)
	assert.Equal(t, 6, stats.TransactionCount)

	require.Len(t, stats.RecentTransactions, 5)
	ids := make([]string, 0, 5)
	for _, entry := range stats.RecentTransactions {
		ids = append(ids, entry.ID)
	}
	assert.Equal(t, []string{"e6", "e5", "e4", "e3", "e2"}, ids)

	assert.Equal(t, []ChartPoint{
		{Date: "2026-01-02", Revenue: 1000, Expenses: 250},
		{Date: "2026-01-05", Revenue: 0, Expenses: 100},
		{Date: "2026-01-07", Revenue: 300, Expenses: 50},
		{Date: "2026-01-09", Revenue: 0, Expenses: 200},
	}, stats.ChartData)
}

func TestStatsWithoutRevenue(t *testing.T) {
	stats := Stats([]Entry{{ID: "e1", Amount: 40, Type: Debit, Date: "2026-02-01"}})
	assert.Equal(t, float64(0), stats.ProfitMargin)
	assert.Equal(t, float64(-40), stats.NetProfit)

	empty := Stats(nil)
	assert.NotNil(t, empty.RecentTransactions)
	assert.NotNil(t, empty.ChartData)
	assert.Zero(t, empty.TransactionCount)
}
