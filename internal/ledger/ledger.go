// Package ledger derives card balances and dashboard figures from expense
// entries.
package ledger

import (
	"sort"
	"time"
)

type EntryType string

const (
	Credit EntryType = "credit"
	Debit  EntryType = "debit"
)

func ValidType(value string) bool {
	return EntryType(value) == Credit || EntryType(value) == Debit
}

// Entry is the subset of an expense that affects totals.
type Entry struct {
	ID        string    `json:"id"`
	Amount    float64   `json:"amount"`
	Type      EntryType `json:"type"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the denormalized balance stored on a card.
type Summary struct {
	Balance float64
	Credits float64
}

// Balance adds credits and subtracts debits. Credits are also totalled on
// their own.
func Balance(entries []Entry) Summary {
	var summary Summary
	for _, entry := range entries {
		if entry.Type == Credit {
			summary.Balance += entry.Amount
			summary.Credits += entry.Amount
			continue
		}
		summary.Balance -= entry.Amount
	}
	return summary
}

type ChartPoint struct {
	Date     string  `json:"date"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
}

type FinancialStats struct {
	TotalRevenue       float64      `json:"totalRevenue"`
	TotalExpenses      float64      `json:"totalExpenses"`
	NetProfit          float64      `json:"netProfit"`
	ProfitMargin       float64      `json:"profitMargin"`
	TransactionCount   int          `json:"transactionCount"`
	RecentTransactions []Entry      `json:"recentTransactions"`
	ChartData          []ChartPoint `json:"chartData"`
}

const recentTransactionLimit = 5

// Stats expects entries ordered by date ascending.
func Stats(entries []Entry) FinancialStats {
	stats := FinancialStats{
		TransactionCount:   len(entries),
		RecentTransactions: []Entry{},
		ChartData:          []ChartPoint{},
	}

	byDate := make(map[string]*ChartPoint)
	for _, entry := range entries {
		point, ok := byDate[entry.Date]
		if !ok {
			point = &ChartPoint{Date: entry.Date}
			byDate[entry.Date] = point
		}
		if entry.Type == Credit {
			stats.TotalRevenue += entry.Amount
			point.Revenue += entry.Amount
		} else {
			stats.TotalExpenses += entry.Amount
			point.Expenses += entry.Amount
		}
	}

	for _, point := range byDate {
		stats.ChartData = append(stats.ChartData, *point)
	}
	sort.Slice(stats.ChartData, func(i, j int) bool {
		return chartTime(stats.ChartData[i].Date).Before(chartTime(stats.ChartData[j].Date))
	})

	stats.NetProfit = stats.TotalRevenue - stats.TotalExpenses
	if stats.TotalRevenue > 0 {
		stats.ProfitMargin = stats.NetProfit / stats.TotalRevenue * 100
	}

	start := len(entries) - recentTransactionLimit
	if start < 0 {
		start = 0
	}
	for i := len(entries) - 1; i >= start; i-- {
		stats.RecentTransactions = append(stats.RecentTransactions, entries[i])
	}
	return stats
}

func chartTime(date string) time.Time {
	if parsed, err := time.Parse("2006-01-02", date); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, date); err == nil {
		return parsed
	}
	return time.Time{}
}
