package parsers

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SkipBOM drops a leading UTF-8 byte order mark.
func SkipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	peeked, err := br.Peek(3)
	if err == nil && bytes.Equal(peeked, utf8BOM) {
		br.Discard(3)
	}
	return br
}

// DecodeReader wraps r so it yields UTF-8. name is "utf-8" (the default),
// "shift_jis" or "windows-1252".
func DecodeReader(r io.Reader, name string) (io.Reader, error) {
	var enc encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		enc = unicode.UTF8
	case "shift_jis", "shift-jis", "sjis":
		enc = japanese.ShiftJIS
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", name)
	}
	return SkipBOM(transform.NewReader(r, enc.NewDecoder())), nil
}

// getColIndex maps lower-cased header names to column positions and checks
// that every required column is present.
func getColIndex(header []string, required []string) (map[string]int, error) {
	colIndex := make(map[string]int)
	for i, colName := range header {
		colIndex[strings.ToLower(strings.TrimSpace(colName))] = i
	}
	for _, req := range required {
		if _, ok := colIndex[req]; !ok {
			return nil, fmt.Errorf("required header not found: %s", req)
		}
	}
	return colIndex, nil
}

func getter(colIndex map[string]int, rec []string) func(string) string {
	return func(key string) string {
		if idx, ok := colIndex[key]; ok && idx < len(rec) {
			return strings.TrimSpace(rec[idx])
		}
		return ""
	}
}
