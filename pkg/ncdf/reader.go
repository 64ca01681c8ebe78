package ncdf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Tags of the classic header lists
const (
	tagDimension uint32 = 0x0A
	tagVariable  uint32 = 0x0B
	tagAttribute uint32 = 0x0C
)

const streamingNumrecs = 0xFFFFFFFF

// ReadFile reads a NetCDF classic file from disk
func ReadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read netcdf file: %w", err)
	}
	ds, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return ds, nil
}

// Read reads a NetCDF classic file from a reader
func Read(r io.Reader) (*Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read netcdf stream: %w", err)
	}
	return Decode(data)
}

// Decode parses the classic (CDF-1) or 64-bit offset (CDF-2) container
func Decode(data []byte) (*Dataset, error) {
	d := &decoder{buf: data}
	return d.decode()
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) decode() (*Dataset, error) {
	magic, err := d.bytes(4)
	if err != nil {
		return nil, err
	}
	if magic[0] != 'C' || magic[1] != 'D' || magic[2] != 'F' {
		return nil, fmt.Errorf("not a netcdf classic file (magic %q)", magic[:3])
	}
	version := magic[3]
	if version != 1 && version != 2 {
		return nil, fmt.Errorf("unsupported netcdf version %d", version)
	}

	ds := &Dataset{Version: version}

	numrecs, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if numrecs == streamingNumrecs {
		return nil, fmt.Errorf("streaming record count is not supported")
	}

	if err := d.dimList(ds, int(numrecs)); err != nil {
		return nil, err
	}
	attrs, err := d.attrList()
	if err != nil {
		return nil, fmt.Errorf("failed to decode global attributes: %w", err)
	}
	ds.Attrs = attrs

	if err := d.varList(ds, version, int(numrecs)); err != nil {
		return nil, err
	}
	return ds, nil
}

func (d *decoder) dimList(ds *Dataset, numrecs int) error {
	tag, count, err := d.listHeader()
	if err != nil {
		return fmt.Errorf("failed to decode dimension list: %w", err)
	}
	if count == 0 {
		return nil
	}
	if tag != tagDimension {
		return fmt.Errorf("expected dimension tag, got 0x%02X", tag)
	}
	for i := 0; i < count; i++ {
		name, err := d.name()
		if err != nil {
			return fmt.Errorf("failed to decode dimension name: %w", err)
		}
		length, err := d.uint32()
		if err != nil {
			return err
		}
		dim := Dimension{Name: name, Len: int(length)}
		if length == 0 {
			dim.Unlimited = true
			dim.Len = numrecs
		}
		ds.Dims = append(ds.Dims, dim)
	}
	return nil
}

func (d *decoder) attrList() ([]Attr, error) {
	tag, count, err := d.listHeader()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if tag != tagAttribute {
		return nil, fmt.Errorf("expected attribute tag, got 0x%02X", tag)
	}
	attrs := make([]Attr, 0, count)
	for i := 0; i < count; i++ {
		name, err := d.name()
		if err != nil {
			return nil, err
		}
		typ, err := d.uint32()
		if err != nil {
			return nil, err
		}
		nelems, err := d.uint32()
		if err != nil {
			return nil, err
		}
		t := Type(typ)
		if !t.valid() {
			return nil, fmt.Errorf("attribute %q has invalid type %d", name, typ)
		}
		raw, err := d.bytes(pad4(int(nelems) * t.Size()))
		if err != nil {
			return nil, err
		}
		value, err := decodeValues(t, int(nelems), raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs = append(attrs, Attr{Name: name, Value: value})
	}
	return attrs, nil
}

type varHeader struct {
	v       *Variable
	vsize   int
	begin   int64
	record  bool
	perRec  int // elements per record (record vars)
	nFixed  int // total elements (fixed vars)
}

func (d *decoder) varList(ds *Dataset, version byte, numrecs int) error {
	tag, count, err := d.listHeader()
	if err != nil {
		return fmt.Errorf("failed to decode variable list: %w", err)
	}
	if count == 0 {
		return nil
	}
	if tag != tagVariable {
		return fmt.Errorf("expected variable tag, got 0x%02X", tag)
	}

	headers := make([]varHeader, 0, count)
	for i := 0; i < count; i++ {
		name, err := d.name()
		if err != nil {
			return fmt.Errorf("failed to decode variable name: %w", err)
		}
		ndims, err := d.uint32()
		if err != nil {
			return err
		}
		dims := make([]string, ndims)
		record := false
		elems := 1
		perRec := 1
		for j := 0; j < int(ndims); j++ {
			id, err := d.uint32()
			if err != nil {
				return err
			}
			if int(id) >= len(ds.Dims) {
				return fmt.Errorf("variable %q references unknown dimension %d", name, id)
			}
			dim := ds.Dims[id]
			dims[j] = dim.Name
			if j == 0 && dim.Unlimited {
				record = true
				continue
			}
			elems *= dim.Len
			perRec *= dim.Len
		}
		attrs, err := d.attrList()
		if err != nil {
			return fmt.Errorf("variable %q: %w", name, err)
		}
		typ, err := d.uint32()
		if err != nil {
			return err
		}
		t := Type(typ)
		if !t.valid() {
			return fmt.Errorf("variable %q has invalid type %d", name, typ)
		}
		vsize, err := d.uint32()
		if err != nil {
			return err
		}
		var begin int64
		if version == 1 {
			b, err := d.uint32()
			if err != nil {
				return err
			}
			begin = int64(b)
		} else {
			b, err := d.uint64()
			if err != nil {
				return err
			}
			begin = int64(b)
		}
		v := &Variable{Name: name, Type: t, Dims: dims, Attrs: attrs}
		if !record {
			perRec = 0
		} else {
			elems = perRec * numrecs
		}
		headers = append(headers, varHeader{
			v: v, vsize: int(vsize), begin: begin,
			record: record, perRec: perRec, nFixed: elems,
		})
		ds.Vars = append(ds.Vars, v)
	}

	// Fixed-size data lives at each variable's begin offset.
	for _, h := range headers {
		if h.record {
			continue
		}
		if err := d.varData(h.v, h.begin, h.nFixed); err != nil {
			return err
		}
	}

	// Record data is interleaved: record r of variable v lives at
	// begin(v) + r*recSize. With a single record variable the slabs
	// are unpadded.
	recVars := 0
	recSize := 0
	for _, h := range headers {
		if h.record {
			recVars++
			recSize += pad4(h.perRec * h.v.Type.Size())
		}
	}
	if recVars == 1 {
		for _, h := range headers {
			if h.record {
				recSize = h.perRec * h.v.Type.Size()
			}
		}
	}
	for _, h := range headers {
		if !h.record {
			continue
		}
		if err := d.recordData(h.v, h.begin, h.perRec, numrecs, recSize); err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) varData(v *Variable, begin int64, nelems int) error {
	size := nelems * v.Type.Size()
	if begin < 0 || begin+int64(size) > int64(len(d.buf)) {
		return fmt.Errorf("variable %q data out of bounds", v.Name)
	}
	value, err := decodeValues(v.Type, nelems, d.buf[begin:begin+int64(size)])
	if err != nil {
		return fmt.Errorf("variable %q: %w", v.Name, err)
	}
	v.Data = value
	return nil
}

func (d *decoder) recordData(v *Variable, begin int64, perRec, numrecs, recSize int) error {
	slab := perRec * v.Type.Size()
	raw := make([]byte, 0, slab*numrecs)
	for r := 0; r < numrecs; r++ {
		off := begin + int64(r)*int64(recSize)
		if off < 0 || off+int64(slab) > int64(len(d.buf)) {
			return fmt.Errorf("variable %q record %d out of bounds", v.Name, r)
		}
		raw = append(raw, d.buf[off:off+int64(slab)]...)
	}
	value, err := decodeValues(v.Type, perRec*numrecs, raw)
	if err != nil {
		return fmt.Errorf("variable %q: %w", v.Name, err)
	}
	v.Data = value
	return nil
}

// decodeValues converts big-endian external values into a typed slice
func decodeValues(t Type, nelems int, raw []byte) (any, error) {
	need := nelems * t.Size()
	if len(raw) < need {
		return nil, fmt.Errorf("short data: need %d bytes, have %d", need, len(raw))
	}
	switch t {
	case TypeChar:
		if nelems == 0 {
			return "", nil
		}
		return string(raw[:nelems]), nil
	case TypeByte:
		out := make([]int8, nelems)
		for i := range out {
			out[i] = int8(raw[i])
		}
		return out, nil
	case TypeShort:
		out := make([]int16, nelems)
		for i := range out {
			out[i] = int16(binary.BigEndian.Uint16(raw[2*i:]))
		}
		return out, nil
	case TypeInt:
		out := make([]int32, nelems)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	case TypeFloat:
		out := make([]float32, nelems)
		for i := range out {
			out[i] = math.Float32frombits(binary.BigEndian.Uint32(raw[4*i:]))
		}
		return out, nil
	case TypeDouble:
		out := make([]float64, nelems)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(raw[8*i:]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid type %d", t)
}

func (d *decoder) listHeader() (uint32, int, error) {
	tag, err := d.uint32()
	if err != nil {
		return 0, 0, err
	}
	count, err := d.uint32()
	if err != nil {
		return 0, 0, err
	}
	if tag == 0 && count != 0 {
		return 0, 0, fmt.Errorf("malformed absent list")
	}
	return tag, int(count), nil
}

func (d *decoder) name() (string, error) {
	n, err := d.uint32()
	if err != nil {
		return "", err
	}
	raw, err := d.bytes(pad4(int(n)))
	if err != nil {
		return "", err
	}
	return string(raw[:n]), nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, fmt.Errorf("unexpected end of file at offset %d", d.off)
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) uint32() (uint32, error) {
	b, err := d.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) uint64() (uint64, error) {
	b, err := d.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// pad4 rounds n up to the next multiple of four
func pad4(n int) int {
	return (n + 3) &^ 3
}
