package schema

// TypeCode is a portable column type code of the schema language. Each
// dialect maps codes to its native column types.
type TypeCode string

const (
	TypeInt        TypeCode = "I"
	TypeTinyInt    TypeCode = "I1"
	TypeSmallInt   TypeCode = "I2"
	TypeBigInt     TypeCode = "I8"
	TypeFloat      TypeCode = "F"
	TypeDecimal    TypeCode = "N"
	TypeChar       TypeCode = "C"
	TypeMediumText TypeCode = "MX"
	TypeText       TypeCode = "X"
	TypeMediumBlob TypeCode = "MB"
	TypeBlob       TypeCode = "B"
	TypeJSON       TypeCode = "J"
	TypeBinary     TypeCode = "BIN"
	TypeDate       TypeCode = "D"
	TypeDateTime   TypeCode = "T"
	TypeEnum       TypeCode = "ENUM"

	// Long-form aliases.
	TypeInt8      TypeCode = "INT8"
	TypeInt16     TypeCode = "INT16"
	TypeInt32     TypeCode = "INT32"
	TypeInt64     TypeCode = "INT64"
	TypeCharAlias TypeCode = "CHAR"
	TypeDouble    TypeCode = "DOUBLE"
	TypeTextAlias TypeCode = "TEXT"
	TypeBlobAlias TypeCode = "BLOB"
	TypeJSONAlias TypeCode = "JSON"
	TypeBool      TypeCode = "BOOL"
	TypeBoolean   TypeCode = "BOOLEAN"
)

// typeInfo describes how a type code is parsed.
type typeInfo struct {
	sized bool // args required; unsized codes reject args
}

var typeRegistry = map[TypeCode]typeInfo{
	TypeInt:        {},
	TypeTinyInt:    {},
	TypeSmallInt:   {},
	TypeBigInt:     {},
	TypeFloat:      {},
	TypeDecimal:    {},
	TypeChar:       {sized: true},
	TypeMediumText: {},
	TypeText:       {},
	TypeMediumBlob: {},
	TypeBlob:       {},
	TypeJSON:       {},
	TypeBinary:     {sized: true},
	TypeDate:       {},
	TypeDateTime:   {},
	TypeEnum:       {sized: true},

	TypeInt8:      {},
	TypeInt16:     {},
	TypeInt32:     {},
	TypeInt64:     {},
	TypeCharAlias: {sized: true},
	TypeDouble:    {},
	TypeTextAlias: {},
	TypeBlobAlias: {},
	TypeJSONAlias: {},
	TypeBool:      {},
	TypeBoolean:   {},
}

// Known reports whether c is a registered type code.
func (c TypeCode) Known() bool {
	_, ok := typeRegistry[c]
	return ok
}

// Sized reports whether c requires a size or value-list argument.
func (c TypeCode) Sized() bool {
	return typeRegistry[c].sized
}

// IsInteger reports whether c maps to an integer column type.
func (c TypeCode) IsInteger() bool {
	switch c {
	case TypeInt, TypeTinyInt, TypeSmallInt, TypeBigInt,
		TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}
