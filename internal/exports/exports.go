// Package exports renders report downloads from stored telemetry and the
// event log.
package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	eventstore "fieldwatch/internal/alarms/infrastructure/postgres"
	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
)

const timeLayout = time.RFC3339

// EventSource lists the full event log for the CSV export.
type EventSource interface {
	ListAll(ctx context.Context) ([]eventstore.EventDetail, error)
}

// SampleSource lists a point's series for the spreadsheet export.
type SampleSource interface {
	ListByPoint(ctx context.Context, pointID string) ([]telemetry.Sample, error)
	GetByID(ctx context.Context, id string) (*telemetry.Point, error)
}

// ClientSource lists clients for the PDF summary.
type ClientSource interface {
	List(ctx context.Context) ([]directory.Client, error)
}

// EventsCSV renders the event log as CSV.
func EventsCSV(ctx context.Context, source EventSource) ([]byte, error) {
	if source == nil {
		return nil, errors.New("exports: nil event source")
	}
	events, err := source.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	_ = writer.Write([]string{"id", "type", "point_name", "group_name", "value", "created_at"})
	for _, event := range events {
		_ = writer.Write([]string{
			event.ID,
			event.Type,
			event.PointName,
			event.GroupName,
			strconv.FormatFloat(event.Value, 'f', -1, 64),
			event.CreatedAt.UTC().Format(timeLayout),
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SamplesXLSX renders one point's sample series as a spreadsheet.
func SamplesXLSX(ctx context.Context, source SampleSource, pointID string) ([]byte, error) {
	if source == nil {
		return nil, errors.New("exports: nil sample source")
	}
	if pointID == "" {
		return nil, errors.New("exports: empty point id")
	}
	point, err := source.GetByID(ctx, pointID)
	if err != nil {
		return nil, err
	}
	if point == nil {
		return nil, telemetry.ErrNotFound
	}
	samples, err := source.ListByPoint(ctx, pointID)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	defer func() { _ = file.Close() }()

	const sheet = "Samples"
	index, err := file.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	file.SetActiveSheet(index)
	_ = file.DeleteSheet("Sheet1")

	_ = file.SetCellValue(sheet, "A1", "point")
	_ = file.SetCellValue(sheet, "B1", point.Name)
	_ = file.SetCellValue(sheet, "A2", "timestamp")
	_ = file.SetCellValue(sheet, "B2", "value")
	for i, sample := range samples {
		row := i + 3
		_ = file.SetCellValue(sheet, fmt.Sprintf("A%d", row), sample.TS.UTC().Format(timeLayout))
		_ = file.SetCellValue(sheet, fmt.Sprintf("B%d", row), sample.Value)
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ClientsPDF renders the client fleet summary as a PDF.
func ClientsPDF(ctx context.Context, source ClientSource) ([]byte, error) {
	if source == nil {
		return nil, errors.New("exports: nil client source")
	}
	clients, err := source.List(ctx)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Client Fleet")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(55, 8, "Name", "1", 0, "L", false, 0, "")
	pdf.CellFormat(45, 8, "Location", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 8, "Status", "1", 0, "L", false, 0, "")
	pdf.CellFormat(55, 8, "Last Report", "1", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, client := range clients {
		status := "offline"
		if client.Connected {
			status = "online"
		}
		if !client.Enabled {
			status = "disabled"
		}
		lastReport := "never"
		if !client.LastReportAt.IsZero() {
			lastReport = client.LastReportAt.UTC().Format(timeLayout)
		}
		pdf.CellFormat(55, 8, client.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 8, client.Location, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 8, status, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 8, lastReport, "1", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
