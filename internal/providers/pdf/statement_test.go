package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateStatementProducesPDF(t *testing.T) {
	provider := New()

	reader, err := provider.GenerateStatement(context.Background(), StatementData{
		GeneratedAt:   "2024-06-01",
		BuildingName:  "Sunrise",
		ResourceLabel: "Flat 101",
		TenantName:    "Asha",
		OccupancyID:   "42",
		Status:        "ACTIVE",
		NoticeState:   "IN_NOTICE_PERIOD",
		StartDate:     "2024-01-01",
		Rent:          "Rs 15,000",
		Deposit:       "Rs 30,000",
		Entries: []StatementEntry{
			{Month: "May 2024", Amount: "Rs 15,000", Paid: "Rs 15,000", Status: "PAID"},
			{Month: "Jun 2024", Amount: "Rs 15,000", Paid: "Rs 5,000", Status: "PARTIAL"},
		},
		TotalDue:    "Rs 30,000",
		TotalPaid:   "Rs 20,000",
		Outstanding: "Rs 10,000",
		Blockers:    []string{"1 rent entries are not fully paid"},
	})
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}
