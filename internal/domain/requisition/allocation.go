package requisition

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Allocation assigns a share of the requisition cost to one department (rateio).
type Allocation struct {
	DepartmentID string          `json:"department_id"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// ValidateAllocations checks that the breakdown is non-empty, has unique departments,
// keeps every share within [0, 100] and sums to exactly 100.
func ValidateAllocations(allocations []Allocation) error {
	if len(allocations) == 0 {
		return fmt.Errorf("%w: at least one department is required", ErrInvalidAllocation)
	}

	seen := make(map[string]bool, len(allocations))
	sum := decimal.Zero

	for i, a := range allocations {
		dept := strings.TrimSpace(a.DepartmentID)
		if dept == "" {
			return fmt.Errorf("%w: allocation %d has no department", ErrInvalidAllocation, i)
		}
		if seen[dept] {
			return fmt.Errorf("%w: department %s appears more than once", ErrInvalidAllocation, dept)
		}
		seen[dept] = true

		if a.Percentage.IsNegative() {
			return fmt.Errorf("%w: department %s has negative percentage %s", ErrInvalidAllocation, dept, a.Percentage)
		}
		if a.Percentage.GreaterThan(hundred) {
			return fmt.Errorf("%w: department %s exceeds 100%% (%s)", ErrInvalidAllocation, dept, a.Percentage)
		}

		sum = sum.Add(a.Percentage)
	}

	if !sum.Equal(hundred) {
		return fmt.Errorf("%w: percentages sum to %s, expected 100", ErrInvalidAllocation, sum)
	}

	return nil
}
