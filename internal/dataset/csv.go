package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/climate-anomaly-service/internal/analysis"
	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// Column names recognised in the header row (case-insensitive, any order).
const (
	ColumnTimestamp   = "timestamp"
	ColumnCity        = "city"
	ColumnTemperature = "temperature"
	ColumnSeason      = "season"
)

var timestampLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseCSV reads temperature history with a header row naming at least the
// timestamp, city and temperature columns; season is optional and extra columns
// are ignored. Any malformed row rejects the whole input with an
// *analysis.ValidationError whose Record is the CSV line number.
func ParseCSV(r io.Reader) ([]models.Reading, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &analysis.ValidationError{Record: 1, Field: "header", Reason: "empty input"}
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var readings []models.Reading
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				return nil, &analysis.ValidationError{Record: parseErr.Line, Field: "row", Reason: parseErr.Err.Error()}
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if isBlank(record) {
			continue
		}
		reading, vErr := parseRecord(record, cols)
		if vErr != nil {
			vErr.Record = line
			return nil, vErr
		}
		readings = append(readings, reading)
	}
	return readings, nil
}

type columnIndex struct {
	timestamp, city, temperature, season int
}

func indexColumns(header []string) (columnIndex, error) {
	cols := columnIndex{timestamp: -1, city: -1, temperature: -1, season: -1}
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case ColumnTimestamp:
			cols.timestamp = i
		case ColumnCity:
			cols.city = i
		case ColumnTemperature:
			cols.temperature = i
		case ColumnSeason:
			cols.season = i
		}
	}
	for name, idx := range map[string]int{ColumnTimestamp: cols.timestamp, ColumnCity: cols.city, ColumnTemperature: cols.temperature} {
		if idx < 0 {
			return cols, &analysis.ValidationError{Record: 1, Field: "header", Reason: "missing column " + name}
		}
	}
	return cols, nil
}

func parseRecord(record []string, cols columnIndex) (models.Reading, *analysis.ValidationError) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	city := field(cols.city)
	if city == "" {
		return models.Reading{}, &analysis.ValidationError{Field: ColumnCity, Reason: "required"}
	}
	ts, err := parseTimestamp(field(cols.timestamp))
	if err != nil {
		return models.Reading{}, &analysis.ValidationError{Field: ColumnTimestamp, Reason: err.Error()}
	}
	raw := field(cols.temperature)
	if raw == "" {
		return models.Reading{}, &analysis.ValidationError{Field: ColumnTemperature, Reason: "required"}
	}
	temp, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.Reading{}, &analysis.ValidationError{Field: ColumnTemperature, Reason: fmt.Sprintf("not a number: %q", raw)}
	}

	reading := models.Reading{City: city, Timestamp: ts, Temperature: temp}
	if s := field(cols.season); s != "" {
		season, ok := models.ParseSeason(s)
		if !ok {
			return models.Reading{}, &analysis.ValidationError{Field: ColumnSeason, Reason: fmt.Sprintf("unknown season %q", s)}
		}
		reading.Season = season
	}
	return reading, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised format %q", s)
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
