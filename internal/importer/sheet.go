// Package importer turns a question spreadsheet into an exam draft.
package importer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers of the question sheet.
const (
	ColNumber  = "Vraagnummer"
	ColText    = "Vraagtekst"
	ColAnswer  = "Antwoord"
	ColOptionA = "Optie A"
	ColOptionB = "Optie B"
	ColOptionC = "Optie C"
	ColOptionD = "Optie D"
	ColType    = "Vraagtype"
	ColTheme   = "CBR Thema"
	ColImage   = "Foto"
)

var optionColumns = []string{ColOptionA, ColOptionB, ColOptionC, ColOptionD}

var ErrMissingTextColumn = errors.New("importer: sheet has no " + ColText + " column")

// Picture is an image embedded in the Foto cell of a row.
type Picture struct {
	Data      []byte
	Extension string
}

// Row is one question line of the sheet.
type Row struct {
	Line    int // 1-based sheet row
	Number  int // 0 when the Vraagnummer cell is empty or unparseable
	Text    string
	Answer  string
	Options []string // non-empty options in column order
	Type    string
	Theme   string
	Image   string
	Picture *Picture
}

// ReadSheet reads every non-blank question row below the header of sheet.
// An empty sheet name selects the active sheet.
func ReadSheet(f *excelize.File, sheet string) ([]Row, error) {
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	cells, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	cols := headerIndex(cells[0])
	if _, ok := cols[normalizeHeader(ColText)]; !ok {
		return nil, ErrMissingTextColumn
	}
	get := func(row []string, name string) string {
		i, ok := cols[normalizeHeader(name)]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rows []Row
	for i, raw := range cells[1:] {
		line := i + 2
		r := Row{
			Line:   line,
			Number: parseNumber(get(raw, ColNumber)),
			Text:   get(raw, ColText),
			Answer: get(raw, ColAnswer),
			Type:   get(raw, ColType),
			Theme:  get(raw, ColTheme),
			Image:  get(raw, ColImage),
		}
		if r.Text == "" {
			continue
		}
		for _, name := range optionColumns {
			if v := get(raw, name); v != "" {
				r.Options = append(r.Options, v)
			}
		}
		if idx, ok := cols[normalizeHeader(ColImage)]; ok && r.Image == "" {
			pic, err := readPicture(f, sheet, idx+1, line)
			if err != nil {
				return nil, err
			}
			r.Picture = pic
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func readPicture(f *excelize.File, sheet string, col, line int) (*Picture, error) {
	cell, err := excelize.CoordinatesToCellName(col, line)
	if err != nil {
		return nil, err
	}
	pics, err := f.GetPictures(sheet, cell)
	if err != nil {
		return nil, fmt.Errorf("failed to read picture at %s: %w", cell, err)
	}
	if len(pics) == 0 {
		return nil, nil
	}
	return &Picture{Data: pics[0].File, Extension: pics[0].Extension}, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, seen := cols[key]; key != "" && !seen {
			cols[key] = i
		}
	}
	return cols
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// parseNumber reads "12", "12/50" or "Vraag 12" as 12.
func parseNumber(s string) int {
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
