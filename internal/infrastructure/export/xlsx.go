// Package export renders requisitions as downloadable decision sheets.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

const (
	sheetSummary = "Summary"
	sheetQuotes  = "Quotes"
	sheetRecords = "Records"

	timeLayout = "2006-01-02 15:04:05"
)

var hundred = decimal.NewFromInt(100)

// XLSXExporter writes a three-sheet workbook: summary with allocations,
// quote comparison and the decision log.
type XLSXExporter struct {
	logger *zap.Logger
}

// NewXLSXExporter creates a new exporter
func NewXLSXExporter(logger *zap.Logger) *XLSXExporter {
	return &XLSXExporter{logger: logger}
}

// ContentType returns the MIME type of the workbook
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// FileExtension returns the download extension
func (e *XLSXExporter) FileExtension() string {
	return "xlsx"
}

// Export writes the workbook for req to w
func (e *XLSXExporter) Export(w io.Writer, req *requisition.Requisition) error {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetQuotes, sheetRecords} {
		if _, err := file.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	header, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := e.fillSummary(file, header, req); err != nil {
		return fmt.Errorf("failed to fill summary: %w", err)
	}
	if err := e.fillQuotes(file, header, req); err != nil {
		return fmt.Errorf("failed to fill quotes: %w", err)
	}
	if err := e.fillRecords(file, header, req); err != nil {
		return fmt.Errorf("failed to fill records: %w", err)
	}

	if _, err := file.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	e.logger.Debug("Decision sheet exported",
		zap.String("requisition_id", req.ID.String()),
		zap.Int("quotes", len(req.Quotes)),
		zap.Int("records", len(req.Records)))
	return nil
}

func (e *XLSXExporter) fillSummary(file *excelize.File, header int, req *requisition.Requisition) error {
	decidedAt := ""
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.Format(timeLayout)
	}

	rows := [][]interface{}{
		{"Requisition", req.ID.String()},
		{"Kind", string(req.Kind)},
		{"Description", req.Description},
		{"Requester", req.RequesterID},
		{"Created", req.CreatedAt.Format(timeLayout)},
		{"Director", req.DirectorID},
		{"Managers", strings.Join(req.Managers, ", ")},
		{"Status", string(req.Status)},
		{"Decided at", decidedAt},
		{"Decided by", req.DecidedBy},
		{},
		{"Department", "Percentage", "Share"},
	}

	approved := req.ApprovedQuote()
	for _, a := range req.Allocations {
		share := ""
		if approved != nil {
			share = approved.Total().Mul(a.Percentage).Div(hundred).StringFixed(2)
		}
		rows = append(rows, []interface{}{a.DepartmentID, a.Percentage.String(), share})
	}

	if err := writeRows(file, sheetSummary, rows); err != nil {
		return err
	}
	if err := file.SetCellStyle(sheetSummary, "A1", "A10", header); err != nil {
		return err
	}
	return file.SetCellStyle(sheetSummary, "A12", "C12", header)
}

func (e *XLSXExporter) fillQuotes(file *excelize.File, header int, req *requisition.Requisition) error {
	rows := [][]interface{}{
		{"Quote", "Supplier", "State", "Item", "Quantity", "Unit price", "Line total", "Quote total", "Manager approvals", "Director"},
	}
	for _, q := range req.Quotes {
		total := q.Total().StringFixed(2)
		approvals := fmt.Sprintf("%d/%d %s", len(q.ManagerApprovals), len(req.Managers), strings.Join(q.ManagerApprovals, ", "))
		for i, item := range q.Items {
			row := []interface{}{"", "", "", item.Description, item.Quantity.String(), item.UnitPrice.StringFixed(2), item.Total().StringFixed(2), "", "", ""}
			if i == 0 {
				row[0], row[1], row[2] = q.ID.String(), q.Supplier, string(q.State)
				row[7], row[8], row[9] = total, strings.TrimSpace(approvals), q.DirectorID
			}
			rows = append(rows, row)
		}
	}

	if err := writeRows(file, sheetQuotes, rows); err != nil {
		return err
	}
	return file.SetCellStyle(sheetQuotes, "A1", "J1", header)
}

func (e *XLSXExporter) fillRecords(file *excelize.File, header int, req *requisition.Requisition) error {
	rows := [][]interface{}{
		{"When", "Quote", "Actor", "Seat", "On behalf of", "Master", "Decision"},
	}
	for _, rec := range req.Records {
		master := ""
		if rec.Master {
			master = "yes"
		}
		rows = append(rows, []interface{}{
			rec.CreatedAt.Format(timeLayout),
			rec.QuoteID.String(),
			rec.ActorID,
			string(rec.ActorRole),
			rec.OnBehalfOf,
			master,
			string(rec.Decision),
		})
	}

	if err := writeRows(file, sheetRecords, rows); err != nil {
		return err
	}
	return file.SetCellStyle(sheetRecords, "A1", "G1", header)
}

func writeRows(file *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+1, sheet, err)
		}
	}
	return nil
}

var _ port.ReportExporter = (*XLSXExporter)(nil)
