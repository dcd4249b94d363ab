package resultset

import (
	"fmt"

	"github.com/takapi327/ldbc/mysql/wire"
)

// TextRow is one decoded Protocol::ResultsetRow for the text protocol
// (COM_QUERY), where every non-NULL value is a length-encoded string.
type TextRow struct {
	Values [][]byte // nil entry means SQL NULL
}

// ParseTextRow decodes a text-protocol row given the column count. The
// caller is expected to have already checked the payload isn't an OK/EOF/
// ERR packet (first byte 0x00/0xfe/0xff in this position).
func ParseTextRow(payload []byte, numCols int) (*TextRow, error) {
	r := wire.NewReader(payload)
	row := &TextRow{Values: make([][]byte, numCols)}
	for i := 0; i < numCols; i++ {
		v, isNull := r.LenencStringNull()
		if r.Err() != nil {
			return nil, fmt.Errorf("mysql: decoding text row column %d: %w", i, r.Err())
		}
		if isNull {
			row.Values[i] = nil
			continue
		}
		// copy: the reader's slice aliases the packet buffer, which may be
		// reused by the caller's read loop.
		row.Values[i] = append([]byte(nil), v...)
	}
	return row, nil
}
