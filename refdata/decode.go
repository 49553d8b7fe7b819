// Package refdata loads the three reference datasets (conditions, treatments,
// medicines) from CSV files into typed rows.
package refdata

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// maxFileSize guards against loading something that is not a reference table
const maxFileSize = 64 * 1024 * 1024

// decodeBytes returns a UTF-8 reader over raw file content. Spreadsheet
// exports are either UTF-8 (possibly with a BOM) or Windows-1252.
func decodeBytes(raw []byte) io.Reader {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return bytes.NewReader(raw)
	}
	return charmap.Windows1252.NewDecoder().Reader(bytes.NewReader(raw))
}

func openDecoded(path string) (io.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(raw) > maxFileSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", path, maxFileSize)
	}
	return decodeBytes(raw), nil
}
