package requisition

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func draft(supplier, qty, price string) QuoteDraft {
	return QuoteDraft{
		Supplier: supplier,
		Items: []LineItem{{
			Description: "item",
			Quantity:    decimal.RequireFromString(qty),
			UnitPrice:   decimal.RequireFromString(price),
		}},
	}
}

// newExpense builds a PENDING expense requisition with managers m1, m2,
// director d1 and three open quotes.
func newExpense(t *testing.T) *Requisition {
	t.Helper()
	req, err := New(NewParams{
		Kind:        KindExpense,
		Description: "office chairs",
		RequesterID: "u1",
		DirectorID:  "d1",
		Managers:    []string{"m1", "m2"},
		Allocations: []Allocation{alloc("ops", "60"), alloc("it", "40")},
		Quotes:      []QuoteDraft{draft("Acme", "4", "120.50"), draft("Globex", "4", "99.90"), draft("Initech", "2", "300")},
		CreatedAt:   t0,
	})
	require.NoError(t, err)
	return req
}
