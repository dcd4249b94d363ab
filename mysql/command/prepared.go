package command

import (
	"fmt"
	"math"
	"time"

	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/wire"
)

// cursorTypeNoCursor is the only cursor type ldbc requests in
// COM_STMT_EXECUTE; server-side cursors are out of scope.
const cursorTypeNoCursor byte = 0x00

// PreparedStatement is the server-side handle and cached metadata returned
// by COM_STMT_PREPARE.
type PreparedStatement struct {
	StatementID  uint32
	NumParams    uint16
	NumColumns   uint16
	Params       []*resultset.ColumnDefinition
	Columns      []*resultset.ColumnDefinition
	WarningCount uint16
}

// Prepare sends COM_STMT_PREPARE for sql and reads back the statement
// handle plus its parameter/column metadata.
func Prepare(c *wire.Conn, caps wire.Capability, sql string) (*PreparedStatement, error) {
	if err := sendCommand(c, ComStmtPrepare, []byte(sql)); err != nil {
		return nil, fmt.Errorf("mysql: sending COM_STMT_PREPARE: %w", err)
	}

	payload, _, err := c.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("mysql: reading COM_STMT_PREPARE response: %w", err)
	}
	if isErrPacket(payload) {
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return nil, se
	}

	r := wire.NewReader(payload)
	r.Skip(1) // status, always 0x00
	stmt := &PreparedStatement{}
	stmt.StatementID = r.Int4()
	stmt.NumColumns = r.Int2()
	stmt.NumParams = r.Int2()
	r.Skip(1) // filler
	stmt.WarningCount = r.Int2()
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing COM_STMT_PREPARE_OK: %w", r.Err())
	}

	if stmt.NumParams > 0 {
		stmt.Params = make([]*resultset.ColumnDefinition, stmt.NumParams)
		for i := range stmt.Params {
			p, _, err := c.ReadPacket()
			if err != nil {
				return nil, fmt.Errorf("mysql: reading parameter definition %d: %w", i, err)
			}
			stmt.Params[i], err = resultset.ParseColumnDefinition(p)
			if err != nil {
				return nil, err
			}
		}
		if !caps.Has(wire.ClientDeprecateEOF) {
			if _, _, err := c.ReadPacket(); err != nil {
				return nil, fmt.Errorf("mysql: reading parameter definitions terminator: %w", err)
			}
		}
	}

	if stmt.NumColumns > 0 {
		stmt.Columns = make([]*resultset.ColumnDefinition, stmt.NumColumns)
		for i := range stmt.Columns {
			p, _, err := c.ReadPacket()
			if err != nil {
				return nil, fmt.Errorf("mysql: reading column definition %d: %w", i, err)
			}
			stmt.Columns[i], err = resultset.ParseColumnDefinition(p)
			if err != nil {
				return nil, err
			}
		}
		if !caps.Has(wire.ClientDeprecateEOF) {
			if _, _, err := c.ReadPacket(); err != nil {
				return nil, fmt.Errorf("mysql: reading column definitions terminator: %w", err)
			}
		}
	}

	return stmt, nil
}

// ExecuteResult is the outcome of COM_STMT_EXECUTE: either an OK (DML/DDL)
// or a decoded binary result set.
type ExecuteResult struct {
	OK      *OKResult
	Columns []*resultset.ColumnDefinition
	Rows    []*resultset.BinaryRow
}

// Execute sends COM_STMT_EXECUTE for stmt with the given parameter values
// (each must be one of the Go types encodeBinaryParam accepts, or nil for
// SQL NULL), and decodes the reply. newParamsBound must be true on every
// call where the parameter count or types could have changed since the
// last execution of this statement, per the protocol's
// new-params-bound-flag (§4.5).
func Execute(c *wire.Conn, caps wire.Capability, stmt *PreparedStatement, params []any, newParamsBound bool, behavior resultset.ZeroDateBehavior) (*ExecuteResult, error) {
	if len(params) != int(stmt.NumParams) {
		return nil, fmt.Errorf("mysql: COM_STMT_EXECUTE: got %d parameters, statement expects %d", len(params), stmt.NumParams)
	}

	body, err := buildExecuteBody(stmt, params, newParamsBound)
	if err != nil {
		return nil, err
	}
	if err := sendCommand(c, ComStmtExecute, body); err != nil {
		return nil, fmt.Errorf("mysql: sending COM_STMT_EXECUTE: %w", err)
	}

	payload, _, err := c.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("mysql: reading COM_STMT_EXECUTE response: %w", err)
	}

	if isErrPacket(payload) {
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return nil, se
	}
	if isOKPacket(payload, caps) {
		ok, err := parseOKPacket(payload, caps)
		if err != nil {
			return nil, err
		}
		return &ExecuteResult{OK: ok}, nil
	}
	return readBinaryResultSet(c, payload, caps, behavior)
}

func readBinaryResultSet(c *wire.Conn, columnCountPayload []byte, caps wire.Capability, behavior resultset.ZeroDateBehavior) (*ExecuteResult, error) {
	r := wire.NewReader(columnCountPayload)
	numCols := int(r.LenencInt())
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing binary result set column count: %w", r.Err())
	}

	cols := make([]*resultset.ColumnDefinition, numCols)
	for i := range cols {
		p, _, err := c.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("mysql: reading column definition %d: %w", i, err)
		}
		cols[i], err = resultset.ParseColumnDefinition(p)
		if err != nil {
			return nil, err
		}
	}
	if !caps.Has(wire.ClientDeprecateEOF) {
		if _, _, err := c.ReadPacket(); err != nil {
			return nil, fmt.Errorf("mysql: reading column definitions terminator: %w", err)
		}
	}

	var rows []*resultset.BinaryRow
	for {
		payload, _, err := c.ReadPacket()
		if err != nil {
			return nil, fmt.Errorf("mysql: reading binary row: %w", err)
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
		// binary rows carry a leading 0x00 packet-header byte before the
		// NULL bitmap, which ParseBinaryRow does not expect.
		row, err := resultset.ParseBinaryRow(payload[1:], cols, behavior)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	return &ExecuteResult{Columns: cols, Rows: rows}, nil
}

// buildExecuteBody encodes the COM_STMT_EXECUTE payload: statement id,
// cursor flags, iteration count, NULL bitmap, new-params-bound flag,
// parameter types (only when that flag is set), then the non-NULL
// parameter values.
func buildExecuteBody(stmt *PreparedStatement, params []any, newParamsBound bool) ([]byte, error) {
	w := wire.NewWriter()
	w.Int4(stmt.StatementID)
	w.Int1(cursorTypeNoCursor)
	w.Int4(1) // iteration count, always 1

	if stmt.NumParams > 0 {
		bitmapLen := (int(stmt.NumParams) + 7) / 8
		bitmap := make([]byte, bitmapLen)
		for i, v := range params {
			if v == nil {
				bitmap[i/8] |= 1 << uint(i%8)
			}
		}
		w.Raw(bitmap)

		if newParamsBound {
			w.Int1(1)
			for _, v := range params {
				typ, unsigned := binaryParamType(v)
				w.Int1(byte(typ))
				if unsigned {
					w.Int1(0x80)
				} else {
					w.Int1(0x00)
				}
			}
		} else {
			w.Int1(0)
		}
		for _, v := range params {
			if v != nil {
				if err := encodeBinaryParam(w, v); err != nil {
					return nil, err
				}
			}
		}
	}
	return w.Bytes(), nil
}

func binaryParamType(v any) (resultset.FieldType, bool) {
	switch v.(type) {
	case nil:
		return resultset.TypeNull, false
	case int8, int16, int32, int64, int:
		return paramIntType(v), false
	case uint8, uint16, uint32, uint64, uint:
		return paramIntType(v), true
	case float32:
		return resultset.TypeFloat, false
	case float64:
		return resultset.TypeDouble, false
	case bool:
		return resultset.TypeTiny, false
	case string:
		return resultset.TypeVarString, false
	case []byte:
		return resultset.TypeBlob, false
	case time.Time:
		return resultset.TypeDateTime, false
	case time.Duration:
		return resultset.TypeTime, false
	default:
		return resultset.TypeVarString, false
	}
}

func paramIntType(v any) resultset.FieldType {
	switch v.(type) {
	case int8, uint8:
		return resultset.TypeTiny
	case int16, uint16:
		return resultset.TypeShort
	case int32, uint32:
		return resultset.TypeLong
	default:
		return resultset.TypeLongLong
	}
}

// encodeBinaryParam appends v's binary-protocol encoding to w, per the
// type dispatch in binaryParamType.
func encodeBinaryParam(w *wire.Writer, v any) error {
	switch val := v.(type) {
	case int8:
		w.Int1(uint8(val))
	case uint8:
		w.Int1(val)
	case int16:
		w.Int2(uint16(val))
	case uint16:
		w.Int2(val)
	case int32:
		w.Int4(uint32(val))
	case uint32:
		w.Int4(val)
	case int64:
		w.Int8(uint64(val))
	case uint64:
		w.Int8(val)
	case int:
		w.Int8(uint64(val))
	case uint:
		w.Int8(uint64(val))
	case bool:
		if val {
			w.Int1(1)
		} else {
			w.Int1(0)
		}
	case float32:
		w.Int4(math.Float32bits(val))
	case float64:
		w.Int8(math.Float64bits(val))
	case string:
		w.LenencString([]byte(val))
	case []byte:
		w.LenencString(val)
	case time.Time:
		encodeBinaryDateTime(w, val)
	case time.Duration:
		encodeBinaryDuration(w, val)
	default:
		return fmt.Errorf("mysql: unsupported parameter type %T", v)
	}
	return nil
}

func encodeBinaryDateTime(w *wire.Writer, t time.Time) {
	if t.IsZero() {
		w.Int1(0)
		return
	}
	hasTime := t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
	if !hasTime {
		w.Int1(4)
		w.Int2(uint16(t.Year()))
		w.Int1(byte(t.Month()))
		w.Int1(byte(t.Day()))
		return
	}
	if t.Nanosecond() == 0 {
		w.Int1(7)
	} else {
		w.Int1(11)
	}
	w.Int2(uint16(t.Year()))
	w.Int1(byte(t.Month()))
	w.Int1(byte(t.Day()))
	w.Int1(byte(t.Hour()))
	w.Int1(byte(t.Minute()))
	w.Int1(byte(t.Second()))
	if t.Nanosecond() != 0 {
		w.Int4(uint32(t.Nanosecond() / 1000))
	}
}

func encodeBinaryDuration(w *wire.Writer, d time.Duration) {
	if d == 0 {
		w.Int1(0)
		return
	}
	negative := d < 0
	if negative {
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d / time.Second
	d -= secs * time.Second
	micros := d / time.Microsecond

	if micros == 0 {
		w.Int1(8)
	} else {
		w.Int1(12)
	}
	if negative {
		w.Int1(1)
	} else {
		w.Int1(0)
	}
	w.Int4(uint32(days))
	w.Int1(byte(hours))
	w.Int1(byte(mins))
	w.Int1(byte(secs))
	if micros != 0 {
		w.Int4(uint32(micros))
	}
}

// SendLongData streams a chunk of a parameter's value via
// COM_STMT_SEND_LONG_DATA, used when a []byte/string parameter exceeds the
// caller's preferred single-packet size. It expects no response.
func SendLongData(c *wire.Conn, stmt *PreparedStatement, paramIndex uint16, chunk []byte) error {
	w := wire.NewWriter()
	w.Int4(stmt.StatementID)
	w.Int2(paramIndex)
	w.Raw(chunk)
	if err := sendCommand(c, ComStmtSendLongData, w.Bytes()); err != nil {
		return fmt.Errorf("mysql: sending COM_STMT_SEND_LONG_DATA: %w", err)
	}
	return nil
}

// CloseStatement sends COM_STMT_CLOSE, which the server never acknowledges.
func CloseStatement(c *wire.Conn, stmt *PreparedStatement) error {
	w := wire.NewWriter()
	w.Int4(stmt.StatementID)
	if err := sendCommand(c, ComStmtClose, w.Bytes()); err != nil {
		return fmt.Errorf("mysql: sending COM_STMT_CLOSE: %w", err)
	}
	return nil
}

// ResetStatement sends COM_STMT_RESET, clearing buffered parameter data and
// cursor state while keeping the prepared statement handle valid.
func ResetStatement(c *wire.Conn, caps wire.Capability, stmt *PreparedStatement) error {
	w := wire.NewWriter()
	w.Int4(stmt.StatementID)
	if err := sendCommand(c, ComStmtReset, w.Bytes()); err != nil {
		return fmt.Errorf("mysql: sending COM_STMT_RESET: %w", err)
	}
	payload, _, err := c.ReadPacket()
	if err != nil {
		return fmt.Errorf("mysql: reading COM_STMT_RESET response: %w", err)
	}
	if isErrPacket(payload) {
		se, err := parseErrPacket(payload, caps)
		if err != nil {
			return err
		}
		return se
	}
	_, err = parseOKPacket(payload, caps)
	return err
}
