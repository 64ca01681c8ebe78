package ncdf

import (
	"fmt"
	"math"
)

// Type is a NetCDF classic external data type
type Type int32

const (
	TypeByte   Type = 1
	TypeChar   Type = 2
	TypeShort  Type = 3
	TypeInt    Type = 4
	TypeFloat  Type = 5
	TypeDouble Type = 6
)

// Size returns the external size of one value in bytes
func (t Type) Size() int {
	switch t {
	case TypeByte, TypeChar:
		return 1
	case TypeShort:
		return 2
	case TypeInt, TypeFloat:
		return 4
	case TypeDouble:
		return 8
	}
	return 0
}

// String returns the CDL name of the type
func (t Type) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypeChar:
		return "char"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	}
	return fmt.Sprintf("type(%d)", int32(t))
}

// valid reports whether t is one of the six classic types
func (t Type) valid() bool {
	return t >= TypeByte && t <= TypeDouble
}

// Default fill values of the classic model. A value equal to the
// variable's fill is treated as masked.
const (
	FillByte   = int8(-127)
	FillChar   = byte(0)
	FillShort  = int16(-32767)
	FillInt    = int32(-2147483647)
	FillFloat  = float32(9.9692099683868690e+36)
	FillDouble = float64(9.9692099683868690e+36)
)

// Dimension is a named axis. Len is the fixed length, or the current
// number of records when Unlimited is set.
type Dimension struct {
	Name      string
	Len       int
	Unlimited bool
}

// Attr is a name/value pair attached to a variable or to the dataset.
// Value holds one of: string, []int8, []int16, []int32, []float32,
// []float64.
type Attr struct {
	Name  string
	Value any
}

// Type returns the external type the attribute encodes to
func (a Attr) Type() Type {
	switch a.Value.(type) {
	case string:
		return TypeChar
	case []int8:
		return TypeByte
	case []int16:
		return TypeShort
	case []int32:
		return TypeInt
	case []float32:
		return TypeFloat
	case []float64:
		return TypeDouble
	}
	return 0
}

// Len returns the number of encoded values
func (a Attr) Len() int {
	switch v := a.Value.(type) {
	case string:
		return len(v)
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}

// Variable is one array of the dataset. Dims are dimension names in
// order; Data holds the flattened values in row-major order as
// []byte (char), []int8, []int16, []int32, []float32 or []float64.
type Variable struct {
	Name  string
	Type  Type
	Dims  []string
	Attrs []Attr
	Data  any
}

// Attr returns the named variable attribute
func (v *Variable) Attr(name string) (Attr, bool) {
	for _, a := range v.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// SetAttr replaces or appends a variable attribute
func (v *Variable) SetAttr(name string, value any) {
	for i, a := range v.Attrs {
		if a.Name == name {
			v.Attrs[i].Value = value
			return
		}
	}
	v.Attrs = append(v.Attrs, Attr{Name: name, Value: value})
}

// Len returns the number of stored values
func (v *Variable) Len() int {
	switch d := v.Data.(type) {
	case []byte:
		return len(d)
	case []int8:
		return len(d)
	case []int16:
		return len(d)
	case []int32:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	}
	return 0
}

// FillValue returns the effective fill value of the variable: the
// _FillValue attribute when present, else the default for the type.
// Char variables have no numeric fill.
func (v *Variable) FillValue() (float64, bool) {
	if a, ok := v.Attr("_FillValue"); ok {
		if vals, ok := attrFloats(a); ok && len(vals) > 0 {
			return vals[0], true
		}
	}
	switch v.Type {
	case TypeByte:
		return float64(FillByte), true
	case TypeShort:
		return float64(FillShort), true
	case TypeInt:
		return float64(FillInt), true
	case TypeFloat:
		return float64(FillFloat), true
	case TypeDouble:
		return FillDouble, true
	}
	return 0, false
}

// FloatAt returns element i as a float64. Char data is not numeric.
func (v *Variable) FloatAt(i int) (float64, bool) {
	switch d := v.Data.(type) {
	case []int8:
		return float64(d[i]), true
	case []int16:
		return float64(d[i]), true
	case []int32:
		return float64(d[i]), true
	case []float32:
		return float64(d[i]), true
	case []float64:
		return d[i], true
	}
	return 0, false
}

// MaskedAt reports whether element i equals the fill value or is NaN
func (v *Variable) MaskedAt(i int) bool {
	val, ok := v.FloatAt(i)
	if !ok {
		return false
	}
	if math.IsNaN(val) {
		return true
	}
	fill, ok := v.FillValue()
	if !ok {
		return false
	}
	// Float fills compare within the type's precision.
	if v.Type == TypeFloat {
		return float32(val) == float32(fill)
	}
	return val == fill
}

// AllMasked reports whether every element of the variable is masked
func (v *Variable) AllMasked() bool {
	n := v.Len()
	if n == 0 {
		return true
	}
	for i := 0; i < n; i++ {
		if !v.MaskedAt(i) {
			return false
		}
	}
	return true
}

// Dataset is an in-memory NetCDF classic file
type Dataset struct {
	Dims  []Dimension
	Attrs []Attr
	Vars  []*Variable

	// Version is the container version read from the magic: 1 for
	// classic 32-bit offsets, 2 for 64-bit offsets. The writer picks
	// the smallest version that fits when zero.
	Version byte
}

// Dim returns the named dimension
func (d *Dataset) Dim(name string) (Dimension, bool) {
	for _, dim := range d.Dims {
		if dim.Name == name {
			return dim, true
		}
	}
	return Dimension{}, false
}

// Var returns the named variable
func (d *Dataset) Var(name string) (*Variable, bool) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// Attr returns the named global attribute
func (d *Dataset) Attr(name string) (Attr, bool) {
	for _, a := range d.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

// AttrString returns the named global attribute as a string
func (d *Dataset) AttrString(name string) (string, bool) {
	a, ok := d.Attr(name)
	if !ok {
		return "", false
	}
	s, ok := a.Value.(string)
	return s, ok
}

// SetAttr replaces or appends a global attribute
func (d *Dataset) SetAttr(name string, value any) {
	for i, a := range d.Attrs {
		if a.Name == name {
			d.Attrs[i].Value = value
			return
		}
	}
	d.Attrs = append(d.Attrs, Attr{Name: name, Value: value})
}

// DeleteAttr removes a global attribute if present
func (d *Dataset) DeleteAttr(name string) {
	for i, a := range d.Attrs {
		if a.Name == name {
			d.Attrs = append(d.Attrs[:i], d.Attrs[i+1:]...)
			return
		}
	}
}

// recordDim returns the unlimited dimension, if any
func (d *Dataset) recordDim() (Dimension, bool) {
	for _, dim := range d.Dims {
		if dim.Unlimited {
			return dim, true
		}
	}
	return Dimension{}, false
}

// isRecord reports whether the variable's leading dimension is the
// unlimited one
func (d *Dataset) isRecord(v *Variable) bool {
	if len(v.Dims) == 0 {
		return false
	}
	dim, ok := d.Dim(v.Dims[0])
	return ok && dim.Unlimited
}

// attrFloats converts a numeric attribute to float64 values
func attrFloats(a Attr) ([]float64, bool) {
	switch v := a.Value.(type) {
	case []int8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, true
	case []int16:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, true
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, true
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, true
	case []float64:
		return v, true
	}
	return nil, false
}
