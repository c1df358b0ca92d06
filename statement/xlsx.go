// Package statement renders a lease's payments as an XLSX workbook.
package statement

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"rentflow/lease"
	"rentflow/lifecycle"
	"rentflow/payment"
)

const sheetName = "Statement"

// Header is the column layout of the payment table.
var Header = []string{
	"Payment ID",
	"Created",
	"Amount",
	"Method",
	"Status",
	"Transaction ID",
	"Paid At",
	"Description",
}

var columnWidths = []float64{38, 20, 14, 16, 14, 28, 20, 40}

// firstRow is where the payment table header goes; the lease summary sits
// above it.
const firstRow = 7

// Totals summarises settled money on a statement.
type Totals struct {
	Paid     decimal.Decimal
	Refunded decimal.Decimal
	Net      decimal.Decimal
}

// Sum adds up successful and refunded payments.
func Sum(payments []payment.Payment) Totals {
	var t Totals
	for _, p := range payments {
		switch p.Status {
		case lifecycle.PaymentSuccessful:
			t.Paid = t.Paid.Add(p.Amount)
		case lifecycle.PaymentRefunded:
			t.Paid = t.Paid.Add(p.Amount)
			t.Refunded = t.Refunded.Add(p.Amount)
		}
	}
	t.Net = t.Paid.Sub(t.Refunded)
	return t
}

// Write renders the statement for l to w.
func Write(w io.Writer, l lease.Lease, payments []payment.Payment) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("statement: create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("statement: drop default sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("statement: create style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("statement: create header style: %w", err)
	}

	totals := Sum(payments)
	summary := [][2]any{
		{"Lease", l.ID},
		{"Period", fmt.Sprintf("%s to %s", l.StartDate, l.EndDate)},
		{"Monthly rent", l.RentAmount.StringFixed(2)},
		{"Status", l.Status.String()},
		{"Net paid", totals.Net.StringFixed(2)},
	}
	for i, kv := range summary {
		row := i + 1
		if err := f.SetCellValue(sheetName, cellName(1, row), kv[0]); err != nil {
			return fmt.Errorf("statement: write summary: %w", err)
		}
		if err := f.SetCellStyle(sheetName, cellName(1, row), cellName(1, row), bold); err != nil {
			return fmt.Errorf("statement: style summary: %w", err)
		}
		if err := f.SetCellValue(sheetName, cellName(2, row), kv[1]); err != nil {
			return fmt.Errorf("statement: write summary: %w", err)
		}
	}

	for col, title := range Header {
		cell := cellName(col+1, firstRow)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return fmt.Errorf("statement: write header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("statement: style header: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("statement: column name: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("statement: column width: %w", err)
		}
	}

	for i, p := range payments {
		row := firstRow + 1 + i
		amount, _ := p.Amount.Float64()
		values := []any{
			p.ID,
			stamp(&p.CreatedAt),
			amount,
			string(p.Method),
			p.Status.String(),
			deref(p.TransactionID),
			stamp(p.PaidAt),
			deref(p.Description),
		}
		for col, v := range values {
			if v == "" {
				continue
			}
			if err := f.SetCellValue(sheetName, cellName(col+1, row), v); err != nil {
				return fmt.Errorf("statement: write row %d: %w", row, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("statement: write workbook: %w", err)
	}
	return nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
