package exports

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	eventstore "fieldwatch/internal/alarms/infrastructure/postgres"
	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
)

type stubEvents struct {
	events []eventstore.EventDetail
}

func (s *stubEvents) ListAll(_ context.Context) ([]eventstore.EventDetail, error) {
	return s.events, nil
}

type stubSamples struct {
	point   *telemetry.Point
	samples []telemetry.Sample
}

func (s *stubSamples) GetByID(_ context.Context, _ string) (*telemetry.Point, error) {
	return s.point, nil
}

func (s *stubSamples) ListByPoint(_ context.Context, _ string) ([]telemetry.Sample, error) {
	return s.samples, nil
}

type stubClients struct {
	clients []directory.Client
}

func (s *stubClients) List(_ context.Context) ([]directory.Client, error) {
	return s.clients, nil
}

func TestEventsCSVRendersRows(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubEvents{events: []eventstore.EventDetail{{
		PointName: "supply-temp",
		GroupName: "ops",
	}}}
	source.events[0].ID = "e1"
	source.events[0].Type = "alarm"
	source.events[0].Value = 42.5
	source.events[0].CreatedAt = ts

	payload, err := EventsCSV(context.Background(), source)
	if err != nil {
		t.Fatalf("EventsCSV: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(payload)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus one row, got %d records", len(records))
	}
	row := records[1]
	if row[0] != "e1" || row[2] != "supply-temp" || row[4] != "42.5" {
		t.Fatalf("unexpected row: %v", row)
	}
}

func TestSamplesXLSXRoundTrips(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	source := &stubSamples{
		point: &telemetry.Point{ID: "p1", ClientID: "c1", Name: "supply-temp"},
		samples: []telemetry.Sample{
			{ID: "s1", PointID: "p1", Value: 21.5, TS: ts},
			{ID: "s2", PointID: "p1", Value: 22.0, TS: ts.Add(15 * time.Minute)},
		},
	}

	payload, err := SamplesXLSX(context.Background(), source, "p1")
	if err != nil {
		t.Fatalf("SamplesXLSX: %v", err)
	}
	file, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer func() { _ = file.Close() }()

	name, err := file.GetCellValue("Samples", "B1")
	if err != nil {
		t.Fatalf("read point name: %v", err)
	}
	if name != "supply-temp" {
		t.Fatalf("expected point name in header, got %q", name)
	}
	value, err := file.GetCellValue("Samples", "B3")
	if err != nil {
		t.Fatalf("read first value: %v", err)
	}
	if value != "21.5" {
		t.Fatalf("expected first sample value, got %q", value)
	}
}

func TestSamplesXLSXUnknownPoint(t *testing.T) {
	source := &stubSamples{point: nil}
	if _, err := SamplesXLSX(context.Background(), source, "ghost"); err != telemetry.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientsPDFProducesDocument(t *testing.T) {
	source := &stubClients{clients: []directory.Client{{
		Name:      "plant-a",
		Location:  "basement",
		Enabled:   true,
		Connected: true,
	}}}

	payload, err := ClientsPDF(context.Background(), source)
	if err != nil {
		t.Fatalf("ClientsPDF: %v", err)
	}
	if !strings.HasPrefix(string(payload), "%PDF") {
		t.Fatal("expected a PDF document")
	}
}
