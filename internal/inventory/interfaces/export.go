package interfaces

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	inventory "carbon-inventory/internal/inventory/domain"
)

const (
	sheetSummary     = "summary"
	sheetItems       = "items"
	sheetAllocations = "allocations"
)

// ErrNilLedger is returned when exporting without ledger state.
var ErrNilLedger = errors.New("export: nil ledger")

// ExportHeader identifies the exported form.
type ExportHeader struct {
	SiteID           string
	SessionID        string
	GeneratedAt      time.Time
	UnitProcessNames map[string]string
}

func (h ExportHeader) unitProcessLabel(id string) string {
	if name := h.UnitProcessNames[id]; name != "" {
		return name + " (" + id + ")"
	}
	return id
}

// BuildLedgerXLSX renders a ledger with its allocation records as a workbook.
func BuildLedgerXLSX(header ExportHeader, ledger *inventory.LedgerSnapshot) ([]byte, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheetSummary)
	if _, err := f.NewSheet(sheetItems); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetAllocations); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(sheetSummary, "A1", "Resource Usage Ledger")
	_ = f.SetCellValue(sheetSummary, "A3", "Site")
	_ = f.SetCellValue(sheetSummary, "B3", header.SiteID)
	_ = f.SetCellValue(sheetSummary, "A4", "Category")
	_ = f.SetCellValue(sheetSummary, "B4", string(ledger.Category))
	_ = f.SetCellValue(sheetSummary, "A5", "Allocation Method")
	_ = f.SetCellValue(sheetSummary, "B5", string(ledger.Method))
	_ = f.SetCellValue(sheetSummary, "A6", "Items")
	_ = f.SetCellValue(sheetSummary, "B6", len(ledger.Items))
	_ = f.SetCellValue(sheetSummary, "A7", "Warnings")
	_ = f.SetCellValue(sheetSummary, "B7", len(ledger.Warnings))
	_ = f.SetCellValue(sheetSummary, "A8", "Generated")
	_ = f.SetCellValue(sheetSummary, "B8", header.GeneratedAt.UTC().Format(time.RFC3339))

	itemHeader := []any{"Item", "Resource Type", "Unit", "DQI"}
	for month := 1; month <= inventory.MonthsPerYear; month++ {
		itemHeader = append(itemHeader, time.Month(month).String()[:3])
	}
	itemHeader = append(itemHeader, "Total", "Unit Processes")
	if err := f.SetSheetRow(sheetItems, "A1", &itemHeader); err != nil {
		return nil, err
	}
	for i, item := range ledger.Items {
		row := []any{item.ID, item.ResourceTypeID, item.Unit, string(item.DQI)}
		for _, usage := range item.MonthlyUsage {
			row = append(row, usage.Amount.InexactFloat64())
		}
		links := make([]string, 0, len(item.LinkedUnitProcessIDs))
		for _, id := range item.LinkedUnitProcessIDs {
			links = append(links, header.unitProcessLabel(id))
		}
		row = append(row, item.TotalAmount.InexactFloat64(), strings.Join(links, ", "))
		if err := f.SetSheetRow(sheetItems, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return nil, err
		}
	}

	allocationHeader := []any{"Item", "Unit Process", "Ratio (%)", "Total Ratio (%)", "Status"}
	if err := f.SetSheetRow(sheetAllocations, "A1", &allocationHeader); err != nil {
		return nil, err
	}
	row := 2
	for _, record := range ledger.Allocations {
		status := statusLabel(inventory.Validate(record))
		for _, allocation := range record.UnitProcessAllocations {
			values := []any{
				record.ItemID,
				header.unitProcessLabel(allocation.UnitProcessID),
				allocation.Ratio.InexactFloat64(),
				record.TotalRatio.InexactFloat64(),
				status,
			}
			if err := f.SetSheetRow(sheetAllocations, fmt.Sprintf("A%d", row), &values); err != nil {
				return nil, err
			}
			row++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildLedgerPDF renders a ledger summary with its allocation table.
func BuildLedgerPDF(header ExportHeader, ledger *inventory.LedgerSnapshot) ([]byte, error) {
	if ledger == nil {
		return nil, ErrNilLedger
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Resource Usage Ledger")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Site: %s", header.SiteID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Category: %s", ledger.Category))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Allocation method: %s", ledger.Method))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", header.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Resource Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(20, 6, "Unit", "1", 0, "C", false, 0, "")
	pdf.CellFormat(15, 6, "DQI", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Total", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range ledger.Items {
		pdf.CellFormat(35, 6, item.ID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, item.ResourceTypeID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, item.Unit, "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 6, string(item.DQI), "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, item.TotalAmount.String(), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, "Item", "1", 0, "C", false, 0, "")
	pdf.CellFormat(80, 6, "Unit Process", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Ratio (%)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Total (%)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Status", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, record := range ledger.Allocations {
		status := statusLabel(inventory.Validate(record))
		for _, allocation := range record.UnitProcessAllocations {
			pdf.CellFormat(35, 6, record.ItemID, "1", 0, "L", false, 0, "")
			pdf.CellFormat(80, 6, header.unitProcessLabel(allocation.UnitProcessID), "1", 0, "L", false, 0, "")
			pdf.CellFormat(30, 6, allocation.Ratio.StringFixed(inventory.RatioPlaces), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, record.TotalRatio.StringFixed(inventory.RatioPlaces), "1", 0, "R", false, 0, "")
			pdf.CellFormat(30, 6, status, "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
	}

	for _, warning := range ledger.Warnings {
		pdf.Ln(2)
		pdf.Cell(0, 6, fmt.Sprintf("%s: %s (total %s%%, delta %s)", warning.ItemID, warning.Message, warning.TotalRatio.String(), warning.Delta.String()))
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func statusLabel(status inventory.ValidationStatus) string {
	if status.OK {
		return "ok"
	}
	return "check"
}
