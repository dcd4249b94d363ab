package command

import (
	"fmt"
	"io"

	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/wire"
)

// LocalInfileHandler opens the local file a server's LOCAL INFILE request
// named, so its contents can be streamed back. Callers that never enable
// Config.AllowLocalInfile never need to supply one.
type LocalInfileHandler func(filename string) (io.Reader, error)

// QueryResult is the outcome of a text-protocol COM_QUERY: either a
// straightforward OK (DML/DDL) or a decoded result set.
type QueryResult struct {
	OK      *OKResult
	Columns []*resultset.ColumnDefinition
	Rows    []*resultset.TextRow
}

// Query sends a COM_QUERY for sql and fully decodes its reply, using caps
// (the capabilities negotiated during handshake) to interpret OK/EOF
// framing. infile is consulted only if the server asks for a local file
// and allowLocalInfile is true; otherwise such a request is rejected with
// an empty response packet, matching the reject-by-default posture of
// §4.5.
func Query(c *wire.Conn, caps wire.Capability, sql string, allowLocalInfile bool, infile LocalInfileHandler) (*QueryResult, error) {
	if err := sendCommand(c, ComQuery, []byte(sql)); err != nil {
		return nil, fmt.Errorf("mysql: sending COM_QUERY: %w", err)
	}
	return readQueryResponse(c, caps, allowLocalInfile, infile)
}

func readQueryResponse(c *wire.Conn, caps wire.Capability, allowLocalInfile bool, infile LocalInfileHandler) (*QueryResult, error) {
	payload, seq, err := c.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("mysql: reading query response: %w", err)
	}

	switch {
	case isErrPacket(payload):
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return nil, se

	case isOKPacket(payload, caps):
		ok, err := parseOKPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return &QueryResult{OK: ok}, nil

	case isLocalInfileRequest(payload):
		return handleLocalInfile(c, payload, seq, allowLocalInfile, infile, caps)

	default:
		return readTextResultSet(c, payload, caps)
	}
}

// handleLocalInfile answers a LOCAL INFILE request. Rejecting is done by
// sending an empty packet, which the server turns into an ERR it then
// reports back to us.
func handleLocalInfile(c *wire.Conn, payload []byte, seq byte, allowLocalInfile bool, infile LocalInfileHandler, caps wire.Capability) (*QueryResult, error) {
	filename := string(payload[1:])

	if !allowLocalInfile || infile == nil {
		if _, err := c.WritePacket(nil, seq+1); err != nil {
			return nil, fmt.Errorf("mysql: rejecting LOCAL INFILE: %w", err)
		}
		return finishLocalInfileRejection(c, caps)
	}

	r, err := infile(filename)
	if err != nil {
		if _, werr := c.WritePacket(nil, seq+1); werr != nil {
			return nil, fmt.Errorf("mysql: aborting LOCAL INFILE after handler error: %w", werr)
		}
		return finishLocalInfileRejection(c, caps)
	}

	nextSeq := seq + 1
	buf := make([]byte, wire.MaxPayloadLen)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			nextSeq, err = c.WritePacket(buf[:n], nextSeq)
			if err != nil {
				return nil, fmt.Errorf("mysql: streaming LOCAL INFILE data: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("mysql: reading local file: %w", rerr)
		}
	}
	if _, err := c.WritePacket(nil, nextSeq); err != nil {
		return nil, fmt.Errorf("mysql: terminating LOCAL INFILE stream: %w", err)
	}
	return finishLocalInfileRejection(c, caps)
}

// finishLocalInfileRejection reads the final OK/ERR the server sends once
// the LOCAL INFILE exchange (successful or rejected) concludes.
func finishLocalInfileRejection(c *wire.Conn, caps wire.Capability) (*QueryResult, error) {
	payload, _, err := c.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("mysql: reading LOCAL INFILE completion: %w", err)
	}
	if isErrPacket(payload) {
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return nil, se
	}
	ok, err := parseOKPacket(payload, caps)
	if err != nil {
		return nil, err
	}
	return &QueryResult{OK: ok}, nil
}

// readTextResultSet decodes a full Text_Resultset, given its already-read
// column-count packet.
func readTextResultSet(c *wire.Conn, columnCountPayload []byte, caps wire.Capability) (*QueryResult, error) {
	r := wire.NewReader(columnCountPayload)
	numCols := int(r.LenencInt())
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing result set column count: %w", r.Err())
	}

	cols := make([]*resultset.ColumnDefinition, numCols)
	for i := 0; i < numCols; i++ {
		payload, _, err := c.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("mysql: reading column definition %d: %w", i, err)
		}
		col, err := resultset.ParseColumnDefinition(payload)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}

	if !caps.Has(wire.ClientDeprecateEOF) {
		if _, _, err := c.ReadPacket(); err != nil {
			return nil, fmt.Errorf("mysql: reading column definitions terminator: %w", err)
		}
	}

	var rows []*resultset.TextRow
	for {
		payload, _, err := c.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("mysql: reading result row: %w", err)
		}
		if isErrPacket(payload) {
			se, err := parseErrPacket(payload, caps)
			if err != nil {
				return nil, err
			}
			return nil, se
		}
		if isEOFPacket(payload, caps) || isOKPacket(payload, caps) {
			break
		}
		row, err := resultset.ParseTextRow(payload, numCols)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return &QueryResult{Columns: cols, Rows: rows}, nil
}
