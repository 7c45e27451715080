package treegrid

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ParseStemsCSV reads stems from CSV. The canonical layout is the one
// WriteStemsCSV emits: a header starting with row, then columns
// row, x, y, diameter_cm with optional height_m and species; columns past
// species are ignored, so written files read back in. A header whose
// first field is not row, or no header at all, means the row column is
// absent and data rows are numbered from 1. Headers are detected by a
// non-numeric first field.
func ParseStemsCSV(r io.Reader) ([]Stem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var stems []Stem
	row := 0
	first := true
	rowCol := false
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		// Header detection: a first line whose leading field is not a
		// number is a header. Its first column decides the layout.
		if first {
			first = false
			if _, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64); err != nil {
				rowCol = strings.EqualFold(strings.TrimSpace(rec[0]), "row")
				continue
			}
		}
		row++

		off := 0
		if rowCol {
			off = 1
		}
		if len(rec) < off+3 {
			return nil, fmt.Errorf("row %d: need at least x, y, diameter_cm, got %d fields", row, len(rec))
		}
		s := Stem{Row: row}
		if rowCol {
			n, err := strconv.Atoi(strings.TrimSpace(rec[0]))
			if err != nil {
				return nil, fmt.Errorf("row %d: bad row %q", row, rec[0])
			}
			s.Row = n
		}
		if s.X, err = parseField(rec[off], row, "x"); err != nil {
			return nil, err
		}
		if s.Y, err = parseField(rec[off+1], row, "y"); err != nil {
			return nil, err
		}
		if s.DiameterCM, err = parseField(rec[off+2], row, "diameter_cm"); err != nil {
			return nil, err
		}
		if s.DiameterCM < 0 {
			return nil, fmt.Errorf("row %d: negative diameter %g", row, s.DiameterCM)
		}
		if len(rec) > off+3 && strings.TrimSpace(rec[off+3]) != "" {
			if s.HeightM, err = parseField(rec[off+3], row, "height_m"); err != nil {
				return nil, err
			}
		}
		if len(rec) > off+4 {
			s.Species = strings.TrimSpace(rec[off+4])
		}
		stems = append(stems, s)
	}
	return stems, nil
}

func parseField(raw string, row int, name string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: bad %s %q", row, name, raw)
	}
	return v, nil
}

// WriteStemsCSV writes classified stems with their outcome and cell, in
// input order. ParseStemsCSV reads the output back, dropping the
// classification columns.
func WriteStemsCSV(w io.Writer, stems []ClassifiedStem) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row", "x", "y", "diameter_cm", "height_m", "species", "classification", "cell_x", "cell_y"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, s := range stems {
		rec := []string{
			strconv.Itoa(s.Row),
			strconv.FormatFloat(s.X, 'f', -1, 64),
			strconv.FormatFloat(s.Y, 'f', -1, 64),
			strconv.FormatFloat(s.DiameterCM, 'f', -1, 64),
			strconv.FormatFloat(s.HeightM, 'f', -1, 64),
			s.Species,
			string(s.Classification),
			strconv.FormatInt(s.CellX, 10),
			strconv.FormatInt(s.CellY, 10),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write csv row %d: %w", s.Row, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
