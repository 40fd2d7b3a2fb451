package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Format identifies an accepted upload file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat maps a file name extension to a Format.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	default:
		return "", validationf("unsupported file type %q; use .csv, .xlsx or .xls", filepath.Ext(fileName))
	}
}

// ReadRecords reads every row of the file at path, header first. Excel
// files are read from their first sheet.
func ReadRecords(path string, format Format) ([][]string, error) {
	switch format {
	case FormatCSV:
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open csv: %w", err)
		}
		defer file.Close()
		return readCSV(file)
	case FormatXLSX:
		return readXLSX(path)
	case FormatXLS:
		return readXLS(path)
	default:
		return nil, validationf("unsupported file type %q", format)
	}
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, validationf("malformed csv: %v", err)
		}
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, validationf("unreadable xlsx file: %v", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, validationf("xlsx file has no sheets")
	}
	rows, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readXLS(path string) ([][]string, error) {
	book, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, validationf("unreadable xls file: %v", err)
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, validationf("xls file has no sheets")
	}

	records := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		record := make([]string, row.LastCol())
		for c := range record {
			record[c] = row.Col(c)
		}
		records = append(records, record)
	}
	return trimTrailingEmpty(records), nil
}

func trimTrailingEmpty(records [][]string) [][]string {
	for len(records) > 0 && allNull(records[len(records)-1]) {
		records = records[:len(records)-1]
	}
	return records
}
