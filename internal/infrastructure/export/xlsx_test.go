package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

func approvedRequisition(t *testing.T) *requisition.Requisition {
	t.Helper()
	req, err := requisition.New(requisition.NewParams{
		Description: "team offsite",
		RequesterID: "u1",
		DirectorID:  "d1",
		Managers:    []string{"m1"},
		Allocations: []requisition.Allocation{
			{DepartmentID: "eng", Percentage: decimal.NewFromInt(75)},
			{DepartmentID: "ops", Percentage: decimal.NewFromInt(25)},
		},
		Quotes: []requisition.QuoteDraft{
			{Supplier: "Lodge", Items: []requisition.LineItem{
				{Description: "rooms", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("80")},
				{Description: "meals", Quantity: decimal.NewFromInt(20), UnitPrice: decimal.RequireFromString("15.5")},
			}},
			{Supplier: "Hotel", Items: []requisition.LineItem{
				{Description: "package", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("1500")},
			}},
		},
	})
	require.NoError(t, err)

	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	q := req.Quotes[0]
	_, err = req.RecordApproval(q.ID, "m1")
	require.NoError(t, err)
	req.AppendRecord(requisition.ApprovalRecord{QuoteID: q.ID, ActorID: "m1", ActorRole: requisition.ActingManager, Decision: requisition.DecisionApprove, CreatedAt: at})
	require.NoError(t, req.RecordDirectorApproval(q.ID, "d1", at))
	req.AppendRecord(requisition.ApprovalRecord{QuoteID: q.ID, ActorID: "d1", ActorRole: requisition.ActingDirector, Decision: requisition.DecisionApprove, CreatedAt: at})
	return req
}

func TestXLSXExporter_Export(t *testing.T) {
	req := approvedRequisition(t)
	e := NewXLSXExporter(zap.NewNop())

	var buf bytes.Buffer
	require.NoError(t, e.Export(&buf, req))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetQuotes, sheetRecords}, f.GetSheetList())

	status, err := f.GetCellValue(sheetSummary, "B8")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", status)

	// 1110.00 funded, 75% to eng
	share, err := f.GetCellValue(sheetSummary, "C13")
	require.NoError(t, err)
	assert.Equal(t, "832.50", share)

	quotes, err := f.GetRows(sheetQuotes)
	require.NoError(t, err)
	require.Len(t, quotes, 4)
	assert.Equal(t, "Lodge", quotes[1][1])
	assert.Equal(t, "APPROVED", quotes[1][2])
	assert.Equal(t, "1110.00", quotes[1][7])
	assert.Equal(t, "310.00", quotes[2][6])
	assert.Equal(t, "REJECTED", quotes[3][2])

	records, err := f.GetRows(sheetRecords)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "director", records[2][3])
}

func TestXLSXExporter_Metadata(t *testing.T) {
	e := NewXLSXExporter(zap.NewNop())
	assert.Equal(t, "xlsx", e.FileExtension())
	assert.Contains(t, e.ContentType(), "spreadsheetml")
}
