package snapshots

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const maxLineBytes = 16 << 20

// ParseError describes one rejected entry of a noisy corpus payload.
type ParseError struct {
	Line int
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// DecodeNDJSON decodes one JSON object per line into R and hands each decoded
// row to prepare for validation and key normalization. Blank lines are ignored;
// undecodable lines and rows rejected by prepare become ParseErrors instead of
// failing the whole payload. Only a read failure of the payload itself is fatal.
// Rows embedding Meta remember their line in SourceLine.
func DecodeNDJSON[R any](raw []byte, prepare func(*R) error) ([]R, []ParseError, error) {
	scanner := bufio.NewScanner(bytes.NewReader(stripFraming(raw)))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	rows := make([]R, 0)
	var parseErrors []ParseError
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !utf8.Valid(line) {
			parseErrors = append(parseErrors, ParseError{Line: lineNumber, Err: fmt.Errorf("invalid utf-8")})
			continue
		}
		var row R
		if err := json.Unmarshal(line, &row); err != nil {
			parseErrors = append(parseErrors, ParseError{Line: lineNumber, Err: err})
			continue
		}
		if located, ok := any(&row).(interface{ SnapshotMeta() *Meta }); ok {
			located.SnapshotMeta().SourceLine = lineNumber
		}
		if prepare != nil {
			if err := prepare(&row); err != nil {
				parseErrors = append(parseErrors, ParseError{Line: lineNumber, Err: err})
				continue
			}
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, parseErrors, err
	}
	return rows, parseErrors, nil
}
