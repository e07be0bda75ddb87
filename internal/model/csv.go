package model

// ParsedCSV is the value produced by ingesting a local CSV file. It is built
// synchronously from the file contents and replaced wholesale whenever the
// user picks a different file.
//
// Invariants: URLColumnIndex is a valid index into Headers, and
// TotalRows >= len(PreviewRows).
type ParsedCSV struct {
	FileName    string
	FileSize    int64
	Headers     []string
	PreviewRows [][]string
	// TotalRows counts every data line (header excluded), including rows
	// whose URL cell is blank.
	TotalRows      int
	URLColumnIndex int
	URLColumnName  string
	// Raw is the original file content, kept so the launcher can upload the
	// file exactly as selected. Bounded by the ingestor's size cap.
	Raw []byte
}
