package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/born-ml/osborn/internal/config"
)

// maxLineSize bounds a single row; a z-profile row is a few thousand numbers.
const maxLineSize = 4 << 20

// Options controls how a file is parsed.
type Options struct {
	Layout config.Layout

	// Comma is the field delimiter. Zero picks ',' when the first data line
	// contains one and runs of whitespace otherwise.
	Comma rune

	// Columns overrides the column names. A header row in the file wins.
	Columns []string
}

// Load reads a whole file.
func Load(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	d, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadSplit reads a file and splits it with Dataset.Split.
func LoadSplit(path string, opts Options, ratio float64) (train, eval *Dataset, err error) {
	d, err := Load(path, opts)
	if err != nil {
		return nil, nil, err
	}
	return d.Split(ratio)
}

// Read parses rows from r.
//
// Blank lines and lines starting with '#' are skipped. The first data line
// is treated as a header when none of its fields is a number.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	width := opts.Layout.Features()
	if width <= 0 {
		return nil, fmt.Errorf("%w: layout %+v", ErrLayout, opts.Layout)
	}

	d := &Dataset{
		Layout:  opts.Layout,
		Columns: defaultColumns(opts.Layout),
	}
	if len(opts.Columns) > 0 {
		d.Columns = append([]string(nil), opts.Columns...)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	comma := opts.Comma
	first := true
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if comma == 0 {
			comma = detectComma(line)
		}
		fields := splitFields(line, comma)

		if len(fields) != width+1 {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d",
				ErrLayout, lineNo, len(fields), width+1)
		}

		values, perr := parseRow(fields)
		if perr != nil {
			if first && isHeader(fields) {
				d.Columns = fields
				first = false
				continue
			}
			return nil, fmt.Errorf("line %d: %w", lineNo, perr)
		}
		first = false

		d.Features = append(d.Features, values[:width]...)
		d.Labels = append(d.Labels, values[width])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read: %w", err)
	}
	if d.Len() == 0 {
		return nil, ErrEmpty
	}
	return d, nil
}

// Write emits d in the format Read accepts, with a header row when d has
// column names. A zero comma writes single-space separated fields.
func Write(w io.Writer, d *Dataset, comma rune) error {
	if comma == 0 {
		comma = ' '
	}
	cw := csv.NewWriter(w)
	cw.Comma = comma

	if len(d.Columns) == d.Width()+1 {
		if err := cw.Write(d.Columns); err != nil {
			return fmt.Errorf("dataset: write header: %w", err)
		}
	}

	record := make([]string, d.Width()+1)
	for i := range d.Len() {
		for j, v := range d.Row(i) {
			record[j] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		record[d.Width()] = strconv.FormatFloat(float64(d.Labels[i]), 'g', -1, 32)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("dataset: write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Save writes d to path, creating or truncating the file.
func Save(path string, d *Dataset, comma rune) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dataset: create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Write(f, d, comma)
}

func detectComma(line string) rune {
	if strings.ContainsRune(line, ',') {
		return ','
	}
	return ' '
}

func splitFields(line string, comma rune) []string {
	if comma == ' ' || comma == '\t' {
		return strings.Fields(line)
	}
	fields := strings.Split(line, string(comma))
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

// isHeader reports whether no field parses as a number.
func isHeader(fields []string) bool {
	for _, s := range fields {
		if _, err := strconv.ParseFloat(s, 32); err == nil {
			return false
		}
	}
	return true
}

func parseRow(fields []string) ([]float32, error) {
	values := make([]float32, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("field %d: %w: %q", i+1, ErrNonFinite, s)
		}
		values[i] = float32(v)
	}
	return values, nil
}
