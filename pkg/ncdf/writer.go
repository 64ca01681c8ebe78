package ncdf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// WriteFile encodes the dataset and writes it to path
func WriteFile(path string, ds *Dataset) error {
	data, err := Encode(ds)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write netcdf file: %w", err)
	}
	return nil
}

// Write encodes the dataset to a writer
func Write(w io.Writer, ds *Dataset) error {
	data, err := Encode(ds)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Encode serializes the dataset into the classic container. The
// version is taken from the dataset, defaulting to CDF-1 and escalating
// to CDF-2 when offsets overflow 32 bits.
func Encode(ds *Dataset) ([]byte, error) {
	if err := validate(ds); err != nil {
		return nil, err
	}

	numrecs := recordCount(ds)

	version := ds.Version
	if version == 0 {
		version = 1
	}
	for {
		data, overflow, err := encode(ds, version, numrecs)
		if err != nil {
			return nil, err
		}
		if overflow && version == 1 {
			version = 2
			continue
		}
		return data, nil
	}
}

func validate(ds *Dataset) error {
	unlimited := 0
	for _, dim := range ds.Dims {
		if dim.Name == "" {
			return fmt.Errorf("dimension with empty name")
		}
		if dim.Unlimited {
			unlimited++
		}
	}
	if unlimited > 1 {
		return fmt.Errorf("classic format allows at most one unlimited dimension")
	}
	for _, v := range ds.Vars {
		if !v.Type.valid() {
			return fmt.Errorf("variable %q has invalid type", v.Name)
		}
		elems := 1
		for i, name := range v.Dims {
			dim, ok := ds.Dim(name)
			if !ok {
				return fmt.Errorf("variable %q references unknown dimension %q", v.Name, name)
			}
			if dim.Unlimited && i != 0 {
				return fmt.Errorf("variable %q: unlimited dimension must lead", v.Name)
			}
			elems *= dim.Len
		}
		if v.Len() != elems {
			return fmt.Errorf("variable %q has %d values, dimensions imply %d", v.Name, v.Len(), elems)
		}
		if typeOfData(v.Data) != v.Type {
			return fmt.Errorf("variable %q data does not match declared type %s", v.Name, v.Type)
		}
	}
	return nil
}

func typeOfData(data any) Type {
	switch data.(type) {
	case []byte, string:
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

// recordCount derives numrecs from the unlimited dimension, falling
// back to the data length of the first record variable
func recordCount(ds *Dataset) int {
	dim, ok := ds.recordDim()
	if !ok {
		return 0
	}
	for _, v := range ds.Vars {
		if !ds.isRecord(v) {
			continue
		}
		perRec := 1
		for _, name := range v.Dims[1:] {
			d, _ := ds.Dim(name)
			perRec *= d.Len
		}
		if perRec > 0 {
			return v.Len() / perRec
		}
	}
	return dim.Len
}

func encode(ds *Dataset, version byte, numrecs int) ([]byte, bool, error) {
	type varLayout struct {
		v      *Variable
		record bool
		slab   int // unpadded bytes per record, or total for fixed vars
		vsize  int
		begin  int64
	}

	layouts := make([]varLayout, len(ds.Vars))
	recVars := 0
	for i, v := range ds.Vars {
		record := ds.isRecord(v)
		elems := 1
		for j, name := range v.Dims {
			if record && j == 0 {
				continue
			}
			dim, _ := ds.Dim(name)
			elems *= dim.Len
		}
		slab := elems * v.Type.Size()
		layouts[i] = varLayout{v: v, record: record, slab: slab, vsize: pad4(slab)}
		if record {
			recVars++
		}
	}

	headerSize := headerLen(ds, version)

	offset := int64(headerSize)
	for i := range layouts {
		if layouts[i].record {
			continue
		}
		layouts[i].begin = offset
		offset += int64(layouts[i].vsize)
	}
	recSize := 0
	for i := range layouts {
		if !layouts[i].record {
			continue
		}
		layouts[i].begin = offset + int64(recSize)
		if recVars == 1 {
			layouts[i].vsize = layouts[i].slab
			recSize += layouts[i].slab
		} else {
			recSize += pad4(layouts[i].slab)
		}
	}

	overflow := false
	if version == 1 {
		end := offset + int64(recSize)*int64(numrecs)
		if end > math.MaxInt32 {
			overflow = true
		}
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + int(offset) + recSize*numrecs)

	// Header.
	buf.WriteString("CDF")
	buf.WriteByte(version)
	writeUint32(&buf, uint32(numrecs))

	writeDimList(&buf, ds)
	writeAttrList(&buf, ds.Attrs)

	if len(ds.Vars) == 0 {
		writeUint32(&buf, 0)
		writeUint32(&buf, 0)
	} else {
		writeUint32(&buf, tagVariable)
		writeUint32(&buf, uint32(len(ds.Vars)))
		for i, l := range layouts {
			writeName(&buf, l.v.Name)
			writeUint32(&buf, uint32(len(l.v.Dims)))
			for _, name := range l.v.Dims {
				writeUint32(&buf, uint32(dimIndex(ds, name)))
			}
			writeAttrList(&buf, l.v.Attrs)
			writeUint32(&buf, uint32(l.v.Type))
			writeUint32(&buf, uint32(layouts[i].vsize))
			if version == 1 {
				writeUint32(&buf, uint32(l.begin))
			} else {
				writeUint64(&buf, uint64(l.begin))
			}
		}
	}

	if buf.Len() != headerSize {
		return nil, false, fmt.Errorf("header size mismatch: computed %d, wrote %d", headerSize, buf.Len())
	}

	// Fixed-size data in variable order, each padded to four bytes.
	for _, l := range layouts {
		if l.record {
			continue
		}
		writeValues(&buf, l.v.Type, l.v.Data, 0, l.v.Len())
		writePadding(&buf, l.vsize-l.slab)
	}

	// Records, interleaved across record variables.
	for r := 0; r < numrecs; r++ {
		for _, l := range layouts {
			if !l.record {
				continue
			}
			perRec := l.slab / l.v.Type.Size()
			writeValues(&buf, l.v.Type, l.v.Data, r*perRec, perRec)
			if recVars > 1 {
				writePadding(&buf, pad4(l.slab)-l.slab)
			}
		}
	}

	return buf.Bytes(), overflow, nil
}

// headerLen computes the encoded header size without writing it
func headerLen(ds *Dataset, version byte) int {
	n := 4 + 4 // magic + numrecs
	n += 8     // dim list tag + count
	for _, dim := range ds.Dims {
		n += nameLen(dim.Name) + 4
	}
	n += attrListLen(ds.Attrs)
	n += 8 // var list tag + count
	beginLen := 4
	if version == 2 {
		beginLen = 8
	}
	for _, v := range ds.Vars {
		n += nameLen(v.Name) + 4 + 4*len(v.Dims) + attrListLen(v.Attrs) + 4 + 4 + beginLen
	}
	return n
}

func nameLen(name string) int {
	return 4 + pad4(len(name))
}

func attrListLen(attrs []Attr) int {
	n := 8
	for _, a := range attrs {
		n += nameLen(a.Name) + 4 + 4 + pad4(a.Len()*a.Type().Size())
	}
	return n
}

func dimIndex(ds *Dataset, name string) int {
	for i, dim := range ds.Dims {
		if dim.Name == name {
			return i
		}
	}
	return -1
}

func writeDimList(buf *bytes.Buffer, ds *Dataset) {
	if len(ds.Dims) == 0 {
		writeUint32(buf, 0)
		writeUint32(buf, 0)
		return
	}
	writeUint32(buf, tagDimension)
	writeUint32(buf, uint32(len(ds.Dims)))
	for _, dim := range ds.Dims {
		writeName(buf, dim.Name)
		if dim.Unlimited {
			writeUint32(buf, 0)
		} else {
			writeUint32(buf, uint32(dim.Len))
		}
	}
}

func writeAttrList(buf *bytes.Buffer, attrs []Attr) {
	if len(attrs) == 0 {
		writeUint32(buf, 0)
		writeUint32(buf, 0)
		return
	}
	writeUint32(buf, tagAttribute)
	writeUint32(buf, uint32(len(attrs)))
	for _, a := range attrs {
		writeName(buf, a.Name)
		writeUint32(buf, uint32(a.Type()))
		writeUint32(buf, uint32(a.Len()))
		writeValues(buf, a.Type(), a.Value, 0, a.Len())
		writePadding(buf, pad4(a.Len()*a.Type().Size())-a.Len()*a.Type().Size())
	}
}

func writeName(buf *bytes.Buffer, name string) {
	writeUint32(buf, uint32(len(name)))
	buf.WriteString(name)
	writePadding(buf, pad4(len(name))-len(name))
}

func writeValues(buf *bytes.Buffer, t Type, data any, from, n int) {
	switch t {
	case TypeChar:
		switch d := data.(type) {
		case string:
			buf.WriteString(d[from : from+n])
		case []byte:
			buf.Write(d[from : from+n])
		}
	case TypeByte:
		d := data.([]int8)
		for i := from; i < from+n; i++ {
			buf.WriteByte(byte(d[i]))
		}
	case TypeShort:
		d := data.([]int16)
		var b [2]byte
		for i := from; i < from+n; i++ {
			binary.BigEndian.PutUint16(b[:], uint16(d[i]))
			buf.Write(b[:])
		}
	case TypeInt:
		d := data.([]int32)
		var b [4]byte
		for i := from; i < from+n; i++ {
			binary.BigEndian.PutUint32(b[:], uint32(d[i]))
			buf.Write(b[:])
		}
	case TypeFloat:
		d := data.([]float32)
		var b [4]byte
		for i := from; i < from+n; i++ {
			binary.BigEndian.PutUint32(b[:], math.Float32bits(d[i]))
			buf.Write(b[:])
		}
	case TypeDouble:
		d := data.([]float64)
		var b [8]byte
		for i := from; i < from+n; i++ {
			binary.BigEndian.PutUint64(b[:], math.Float64bits(d[i]))
			buf.Write(b[:])
		}
	}
}

func writePadding(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(0)
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
