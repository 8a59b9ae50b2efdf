package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"fuelwatch/internal/models"
)

// FileReader parses historical telemetry exports for backfill. Bad lines are
// skipped with a callback rather than aborting the whole file.
type FileReader struct {
	adapter *Adapter
	format  string
}

// NewFileReader returns a reader for the given format ("csv" or "json").
func NewFileReader(adapter *Adapter, format string) *FileReader {
	return &FileReader{adapter: adapter, format: strings.ToLower(format)}
}

// ReadFile parses filename and invokes emit per good sample and skip per bad
// line. Returns the count of emitted samples.
func (fr *FileReader) ReadFile(filename string, emit func(models.TelemetrySample), skip func(line int, err error)) (int, error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	switch fr.format {
	case "csv":
		return fr.readCSV(f, emit, skip)
	case "json":
		return fr.readJSONLines(f, emit, skip)
	default:
		return 0, fmt.Errorf("unsupported format %q (want csv or json)", fr.format)
	}
}

func (fr *FileReader) readCSV(r io.Reader, emit func(models.TelemetrySample), skip func(int, error)) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(h))
	}

	count := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			skip(line, err)
			continue
		}

		var (
			vehicleID string
			ts        time.Time
			badLine   bool
			params    = make(map[string]any, len(record))
		)
		for i, cell := range record {
			if i >= len(cols) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			switch cols[i] {
			case "vehicle_id":
				vehicleID = cell
			case "timestamp", "captured_at":
				ts, err = parseTimestamp(cell)
				if err != nil {
					skip(line, err)
					badLine = true
				}
			default:
				params[cols[i]] = cell
			}
		}
		// Already counted as skipped; Normalize would reject the zero
		// timestamp and count the line a second time.
		if badLine {
			continue
		}

		sample, nerr := fr.adapter.Normalize(vehicleID, ts, params)
		if nerr != nil {
			skip(line, nerr)
			continue
		}
		emit(sample)
		count++
	}
	return count, nil
}

// rawMessage mirrors the provider push payload: identity, timestamp and an
// open parameter map.
type rawMessage struct {
	VehicleID string         `json:"vehicle_id"`
	Timestamp string         `json:"timestamp"`
	Params    map[string]any `json:"params"`
}

func (fr *FileReader) readJSONLines(r io.Reader, emit func(models.TelemetrySample), skip func(int, error)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	count := 0
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || text == "[" || text == "]" {
			continue
		}
		text = strings.TrimSuffix(text, ",")

		var msg rawMessage
		if err := json.Unmarshal([]byte(text), &msg); err != nil {
			skip(line, err)
			continue
		}
		ts, err := parseTimestamp(msg.Timestamp)
		if err != nil {
			skip(line, err)
			continue
		}
		sample, err := fr.adapter.Normalize(msg.VehicleID, ts, msg.Params)
		if err != nil {
			skip(line, err)
			continue
		}
		emit(sample)
		count++
	}
	return count, scanner.Err()
}

// parseTimestamp tries the formats seen in provider exports, then unix seconds.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
