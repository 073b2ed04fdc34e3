// Package export renders the active shipment collection as an xlsx manifest
// for staff download.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/andrescamacho/guiatrack/internal/model"
)

var header = []string{
	"Guía", "Owner", "Customer", "Mode",
	"Declared", "Verified", "Verified?",
	"Billable", "Paid", "Payment status", "Plan", "State", "Created",
}

// WriteManifest writes the shipments into a single-sheet workbook.
func WriteManifest(w io.Writer, shipments []model.Shipment) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for i, s := range shipments {
		values := []interface{}{
			s.ID, s.OwnerEmail, s.CustomerName, string(s.Mode),
			s.DeclaredMeasurement, s.VerifiedMeasurement, s.Verified,
			s.BillableAmount.StringFixed(2), s.PaidAmount.StringFixed(2),
			string(s.PaymentStatus), string(s.PaymentPlan), string(s.LifecycleState),
			s.CreatedAt.UTC().Format(time.RFC3339),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return fmt.Errorf("row cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return fmt.Errorf("write row %d: %w", i+1, err)
			}
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
