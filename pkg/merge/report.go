package merge

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteJSON writes the result as one JSON object keyed by subset name.
// Values are rows, or objects of year to row when the key has a year.
func WriteJSON(w io.Writer, r *OverlapResult) error {
	var buf []byte
	buf = append(buf, '{')
	for i, label := range r.Labels() {
		s := r.Subsets[label]
		if i > 0 {
			buf = append(buf, ", "...)
		}
		name, err := json.Marshal(r.Name(s))
		if err != nil {
			return fmt.Errorf("encode subset name: %w", err)
		}
		buf = append(buf, name...)
		buf = append(buf, ": "...)
		if !r.YearAware {
			buf = appendRow(buf, s.Row)
			continue
		}
		buf = append(buf, '{')
		n := 0
		for _, y := range r.Years() {
			row, ok := s.Years[y]
			if !ok {
				continue
			}
			if n > 0 {
				buf = append(buf, ", "...)
			}
			n++
			buf = append(buf, '"')
			buf = strconv.AppendInt(buf, int64(y), 10)
			buf = append(buf, `": `...)
			buf = appendRow(buf, row)
		}
		buf = append(buf, '}')
	}
	buf = append(buf, '}', '\n')

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write overlap json: %w", err)
	}
	return nil
}

func appendRow(buf []byte, row []uint64) []byte {
	buf = append(buf, '[')
	for i, v := range row {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		buf = strconv.AppendUint(buf, v, 10)
	}
	return append(buf, ']')
}

// Table is one titled section of an overlap report.
type Table struct {
	Title string
	Rows  [][]string
}

// Tables lays the result out as the report sections: subset key counts,
// then (with totals) per-file URL counts and record sizes. Year-aware
// results get one row per year.
func (r *OverlapResult) Tables() []Table {
	labels := r.Labels()
	years := r.Years()

	hosts := Table{Title: "Count of hosts"}
	if r.YearAware {
		hosts.Title = "Hosts"
	}
	header := make([]string, 0, len(labels)+1)
	if r.YearAware {
		header = append(header, "Year")
	}
	for _, l := range labels {
		header = append(header, r.Name(r.Subsets[l]))
	}
	hosts.Rows = append(hosts.Rows, header)

	if r.YearAware {
		for _, y := range years {
			row := []string{strconv.Itoa(y)}
			for _, l := range labels {
				row = append(row, strconv.FormatUint(cell(r.Subsets[l].Years[y], 0), 10))
			}
			hosts.Rows = append(hosts.Rows, row)
		}
	} else {
		row := make([]string, 0, len(labels))
		for _, l := range labels {
			row = append(row, strconv.FormatUint(cell(r.Subsets[l].Row, 0), 10))
		}
		hosts.Rows = append(hosts.Rows, row)
	}

	if !r.Totals {
		return []Table{hosts}
	}
	return []Table{
		hosts,
		r.sumTable("Count of URLs", labels, years, 1),
		r.sumTable("Size of compressed records", labels, years, 2),
	}
}

// sumTable lists column offset (1 = counts, 2 = sizes) of every file in
// every subset.
func (r *OverlapResult) sumTable(title string, labels []string, years []int, offset int) Table {
	t := Table{Title: title}

	var header []string
	if r.YearAware {
		header = append(header, "Year")
	}
	for _, l := range labels {
		s := r.Subsets[l]
		if len(s.Files) == 1 {
			header = append(header, r.Files[s.Files[0]])
			continue
		}
		name := r.Name(s)
		for _, f := range s.Files {
			header = append(header, r.Files[f]+" from ("+name+")")
		}
	}
	t.Rows = append(t.Rows, header)

	values := func(row func(*Subset) []uint64) []string {
		var out []string
		for _, l := range labels {
			s := r.Subsets[l]
			for i := range s.Files {
				out = append(out, strconv.FormatUint(cell(row(s), offset+2*i), 10))
			}
		}
		return out
	}

	if !r.YearAware {
		t.Rows = append(t.Rows, values(func(s *Subset) []uint64 { return s.Row }))
		return t
	}
	for _, y := range years {
		row := append([]string{strconv.Itoa(y)}, values(func(s *Subset) []uint64 { return s.Years[y] })...)
		t.Rows = append(t.Rows, row)
	}
	return t
}

func cell(row []uint64, i int) uint64 {
	if i < len(row) {
		return row[i]
	}
	return 0
}

// WriteCSV writes the report tables, each preceded by its "Title:" line.
// Every field is double-quoted and fields are joined with sep.
func WriteCSV(w io.Writer, r *OverlapResult, sep string) error {
	if sep == "" {
		sep = ","
	}
	var b strings.Builder
	for _, t := range r.Tables() {
		b.WriteString(t.Title)
		b.WriteString(":\n")
		for _, row := range t.Rows {
			for i, f := range row {
				if i > 0 {
					b.WriteString(sep)
				}
				b.WriteByte('"')
				b.WriteString(strings.ReplaceAll(f, `"`, `""`))
				b.WriteByte('"')
			}
			b.WriteByte('\n')
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write overlap csv: %w", err)
	}
	return nil
}

// WriteXLSX writes one worksheet per report table. Numeric cells are
// stored as numbers.
func WriteXLSX(w io.Writer, r *OverlapResult) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range r.Tables() {
		sheet := t.Title
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %s: %w", sheet, err)
		}

		for j, row := range t.Rows {
			cells := make([]interface{}, len(row))
			for k, v := range row {
				if n, err := strconv.ParseUint(v, 10, 64); err == nil && j > 0 {
					cells[k] = n
				} else {
					cells[k] = v
				}
			}
			addr, err := excelize.CoordinatesToCellName(1, j+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(sheet, addr, &cells); err != nil {
				return fmt.Errorf("write sheet %s: %w", sheet, err)
			}
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write overlap xlsx: %w", err)
	}
	return nil
}
