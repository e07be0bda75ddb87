package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagereach/cps-client/internal/apierrors"
	"github.com/pagereach/cps-client/internal/model"
)

const (
	// MaxFileSize caps uploads at 10 MB.
	MaxFileSize = 10 << 20
	// PreviewLimit bounds how many data rows land in the preview.
	PreviewLimit = 5
)

// urlColumnKeywords are matched case-insensitively as substrings against the
// header names, left to right across the header row.
var urlColumnKeywords = []string{"website", "url", "domain", "site"}

// IngestFile validates and parses a local CSV by path.
func IngestFile(path string) (*model.ParsedCSV, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Ingest(filepath.Base(path), info.Size(), f)
}

// Ingest turns a user-selected file into a ParsedCSV or a ValidationError.
// It is a one-shot, stateless transform: the same content always yields a
// structurally equal result, and nothing is retained between calls.
func Ingest(name string, size int64, r io.Reader) (*model.ParsedCSV, error) {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return nil, apierrors.NewValidation("only .csv files are supported, got %q", filepath.Ext(name))
	}
	if size > MaxFileSize {
		return nil, apierrors.NewValidation("file exceeds the %d MB limit", MaxFileSize>>20)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxFileSize {
		return nil, apierrors.NewValidation("file exceeds the %d MB limit", MaxFileSize>>20)
	}

	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, apierrors.NewValidation("file is empty; the header row must contain a column named like: %s", strings.Join(urlColumnKeywords, ", "))
	}

	headers := splitRow(lines[0])
	urlIdx := findURLColumn(headers)
	if urlIdx < 0 {
		return nil, apierrors.NewValidation("no URL column found; accepted header keywords: %s", strings.Join(urlColumnKeywords, ", "))
	}

	parsed := &model.ParsedCSV{
		FileName:       name,
		FileSize:       int64(len(data)),
		Headers:        headers,
		URLColumnIndex: urlIdx,
		URLColumnName:  headers[urlIdx],
		Raw:            data,
	}

	for _, line := range lines[1:] {
		parsed.TotalRows++
		if len(parsed.PreviewRows) >= PreviewLimit {
			continue
		}
		cells := splitRow(line)
		if cellAt(cells, urlIdx) == "" {
			continue
		}
		parsed.PreviewRows = append(parsed.PreviewRows, cells)
	}

	return parsed, nil
}

// findURLColumn returns the index of the first header containing any of the
// accepted keywords, or -1. The left-to-right header scan decides ties when
// several headers match.
func findURLColumn(headers []string) int {
	for i, h := range headers {
		lower := strings.ToLower(h)
		for _, kw := range urlColumnKeywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return -1
}

// splitLines breaks the file into lines, tolerating CRLF and dropping fully
// blank lines (a trailing newline must not count as a data row).
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// splitRow splits on commas and strips surrounding whitespace and quotes
// from each cell. Deliberately not RFC 4180: this mirrors the upload
// contract, which treats the file as plain comma-separated lines.
func splitRow(line string) []string {
	cells := strings.Split(line, ",")
	for i, cell := range cells {
		cell = strings.TrimSpace(cell)
		cell = strings.Trim(cell, `"'`)
		cells[i] = strings.TrimSpace(cell)
	}
	return cells
}

// cellAt reads a cell by index, treating short rows as blank instead of
// panicking on ragged input.
func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}
