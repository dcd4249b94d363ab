package resultset

import (
	"fmt"

	"github.com/takapi327/ldbc/mysql/wire"
)

// ColumnDefinition is one entry of a result set's column-definition block
// (§4.6 / §3 data model).
type ColumnDefinition struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	Charset      uint16
	ColumnLength uint32
	Type         FieldType
	Flags        ColumnFlag
	Decimals     byte
}

// ParseColumnDefinition decodes a Protocol::ColumnDefinition41 packet.
func ParseColumnDefinition(payload []byte) (*ColumnDefinition, error) {
	r := wire.NewReader(payload)

	c := &ColumnDefinition{}
	c.Catalog = string(r.LenencString())
	c.Schema = string(r.LenencString())
	c.Table = string(r.LenencString())
	c.OrgTable = string(r.LenencString())
	c.Name = string(r.LenencString())
	c.OrgName = string(r.LenencString())

	fixedLen := r.LenencInt() // always 0x0c
	_ = fixedLen
	c.Charset = r.Int2()
	c.ColumnLength = r.Int4()
	c.Type = FieldType(r.Int1())
	c.Flags = ColumnFlag(r.Int2())
	c.Decimals = r.Int1()
	r.Skip(2) // filler

	if r.Err() != nil {
		return nil, fmt.Errorf("mysql: parsing column definition: %w", r.Err())
	}
	return c, nil
}

// IsUnsigned reports whether the column carries the UNSIGNED flag.
func (c *ColumnDefinition) IsUnsigned() bool { return c.Flags&FlagUnsigned != 0 }

// IsNullable reports whether the column allows NULL.
func (c *ColumnDefinition) IsNullable() bool { return c.Flags&FlagNotNull == 0 }

// IsBinary reports whether string-typed column bytes should be treated as
// opaque binary rather than charset text.
func (c *ColumnDefinition) IsBinary() bool { return c.Flags&FlagBinary != 0 }
