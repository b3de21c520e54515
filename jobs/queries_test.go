package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The background jobs run raw SQL against the same tables the finance
// repository reads and writes. These guards catch a rename on one side only.
func TestJobQueriesTargetRepositoryTables(t *testing.T) {
	require.Contains(t, overdueScanQuery, "UPDATE invoices")
	require.Contains(t, allocationIntegrityQuery, "FROM instruments")
	require.Contains(t, allocationIntegrityQuery, "JOIN allocations")

	for name, query := range map[string]string{
		"overdue scan":         overdueScanQuery,
		"allocation integrity": allocationIntegrityQuery,
	} {
		require.NotContains(t, query, "finance_", "%s query targets a prefixed table no code writes", name)
	}
}
