package resultset

import (
	"fmt"
	"math"
	"time"

	"github.com/takapi327/ldbc/mysql/wire"
)

// BinaryRow is one decoded Protocol::BinaryResultsetRow, produced by
// COM_STMT_EXECUTE result sets.
type BinaryRow struct {
	Values []any // nil entry means SQL NULL
}

// nullBitmapOffset is the number of leading bits reserved before the first
// column's NULL flag in a binary-protocol row (the packet-header byte
// 0x00 occupies bits that are never used).
const nullBitmapOffset = 2

// ParseBinaryRow decodes a Protocol::BinaryResultsetRow. payload must have
// the leading 0x00 packet-header byte already stripped by the caller.
func ParseBinaryRow(payload []byte, cols []*ColumnDefinition, behavior ZeroDateBehavior) (*BinaryRow, error) {
	numCols := len(cols)
	bitmapLen := (numCols + nullBitmapOffset + 7) / 8

	r := wire.NewReader(payload)
	bitmap := r.FixedBytes(bitmapLen)
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: decoding binary row NULL bitmap: %w", r.Err())
	}

	row := &BinaryRow{Values: make([]any, numCols)}
	for i, col := range cols {
		bitIndex := i + nullBitmapOffset
		if bitmap[bitIndex/8]&(1<<uint(bitIndex%8)) != 0 {
			row.Values[i] = nil
			continue
		}
		v, err := decodeBinaryValue(r, col, behavior)
		if err != nil {
			return nil, fmt.Errorf("mysql: decoding binary row column %q: %w", col.Name, err)
		}
		row.Values[i] = v
	}
	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: decoding binary row: %w", r.Err())
	}
	return row, nil
}

func decodeBinaryValue(r *wire.Reader, col *ColumnDefinition, behavior ZeroDateBehavior) (any, error) {
	switch col.Type {
	case TypeTiny:
		if col.IsUnsigned() {
			return r.Int1(), nil
		}
		return int8(r.Int1()), nil
	case TypeShort, TypeYear:
		if col.IsUnsigned() {
			return r.Int2(), nil
		}
		return int16(r.Int2()), nil
	case TypeLong, TypeInt24:
		if col.IsUnsigned() {
			return r.Int4(), nil
		}
		return int32(r.Int4()), nil
	case TypeLongLong:
		if col.IsUnsigned() {
			return r.Int8(), nil
		}
		return int64(r.Int8()), nil
	case TypeFloat:
		return decodeFloat32(r.FixedBytes(4)), nil
	case TypeDouble:
		return decodeFloat64(r.FixedBytes(8)), nil
	case TypeDate, TypeDateTime, TypeTimestamp:
		return decodeBinaryDateTime(r, col.Name, behavior)
	case TypeTime:
		return decodeBinaryDuration(r)
	case TypeDecimal, TypeNewDecimal, TypeVarChar, TypeVarString, TypeString,
		TypeTinyBlob, TypeMediumBlob, TypeBlob, TypeLongBlob, TypeBit,
		TypeEnum, TypeSet, TypeJSON, TypeGeometry:
		v := r.LenencString()
		return append([]byte(nil), v...), nil
	case TypeNull:
		return nil, nil
	default:
		return nil, &ErrTypeMismatch{Column: col.Name, Reason: fmt.Sprintf("unsupported column type 0x%02x", byte(col.Type))}
	}
}

func decodeFloat32(b []byte) float32 {
	if len(b) < 4 {
		return 0
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits)
}

func decodeFloat64(b []byte) float64 {
	if len(b) < 8 {
		return 0
	}
	bits := uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
	return math.Float64frombits(bits)
}

// decodeBinaryDateTime handles the 0/4/7/11-byte length-prefixed temporal
// encoding shared by DATE, DATETIME and TIMESTAMP in the binary protocol.
func decodeBinaryDateTime(r *wire.Reader, column string, behavior ZeroDateBehavior) (any, error) {
	n := int(r.Int1())
	var year int
	var month, day, hour, min, sec int
	var nsec int

	if n >= 4 {
		year = int(r.Int2())
		month = int(r.Int1())
		day = int(r.Int1())
	}
	if n >= 7 {
		hour = int(r.Int1())
		min = int(r.Int1())
		sec = int(r.Int1())
	}
	if n >= 11 {
		microsec := r.Int4()
		nsec = int(microsec) * 1000
	}
	if r.Err() != nil {
		return time.Time{}, r.Err()
	}

	if isZeroDateComponents(year, month, day) {
		t, isNull, err := handleZeroDate(column, behavior)
		if err != nil {
			return time.Time{}, err
		}
		if isNull {
			return nil, nil
		}
		return t, nil
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, nsec, time.UTC), nil
}

// decodeBinaryDuration handles the 0/8/12-byte length-prefixed TIME
// encoding, returned as a signed time.Duration.
func decodeBinaryDuration(r *wire.Reader) (time.Duration, error) {
	n := int(r.Int1())
	if n == 0 {
		return 0, r.Err()
	}
	isNegative := r.Int1() != 0
	days := r.Int4()
	hours := r.Int1()
	mins := r.Int1()
	secs := r.Int1()
	var micros uint32
	if n >= 12 {
		micros = r.Int4()
	}
	if r.Err() != nil {
		return 0, r.Err()
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(micros)*time.Microsecond
	if isNegative {
		d = -d
	}
	return d, nil
}
