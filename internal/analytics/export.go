package analytics

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the exported workbook
const (
	SheetSummary    = "Summary"
	SheetVenues     = "Venues"
	SheetProducts   = "Products"
	SheetCategories = "Categories"
	SheetDaily      = "Daily"
)

// ExportXLSX writes report as a workbook with one sheet per aggregate
func ExportXLSX(w io.Writer, report *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile creates Sheet1
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	cur, prev := report.Stats.Current, report.Stats.Previous
	summary := [][]any{
		{"Metric", "Current", "Previous", "Growth %"},
		{"Period", report.Period, "", ""},
		{"Start", cur.Range.Start.Format(DateLayout), prev.Range.Start.Format(DateLayout), ""},
		{"End (exclusive)", cur.Range.End.Format(DateLayout), prev.Range.End.Format(DateLayout), ""},
		{"Revenue", money(cur.Revenue), money(prev.Revenue), report.Stats.RevenueGrowth},
		{"Orders", cur.Orders, prev.Orders, report.Stats.OrdersGrowth},
		{"Items", cur.Items, prev.Items, ""},
		{"Active venues", cur.ActiveVenues, prev.ActiveVenues, ""},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return err
	}

	venues := [][]any{{"Venue ID", "Venue", "Revenue", "Orders", "Items", "Previous revenue", "Growth %"}}
	for _, v := range cur.Venues {
		venues = append(venues, []any{v.VenueID, v.VenueName, money(v.Revenue), v.Orders, v.Items, money(v.PreviousRevenue), v.Growth})
	}

	products := [][]any{{"Product", "Category", "Quantity", "Revenue", "Orders"}}
	for _, p := range report.Products {
		products = append(products, []any{p.Name, p.Category, p.Quantity, money(p.Revenue), p.Orders})
	}

	categories := [][]any{{"Category", "Revenue", "Items", "Share %"}}
	for _, c := range report.Categories {
		categories = append(categories, []any{c.Category, money(c.Revenue), c.Items, c.Share})
	}

	daily := [][]any{{"Date", "Revenue", "Orders"}}
	for _, d := range report.Daily {
		daily = append(daily, []any{d.Date, money(d.Revenue), d.Orders})
	}

	for _, sheet := range []struct {
		name string
		rows [][]any
	}{
		{SheetVenues, venues},
		{SheetProducts, products},
		{SheetCategories, categories},
		{SheetDaily, daily},
	} {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet.name, err)
		}
		if err := writeRows(f, sheet.name, sheet.rows); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// money rounds to cents for display
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
