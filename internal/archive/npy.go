package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/sbinet/npyio/npy"
)

const (
	int8Descr = "|i1"

	// npyAlign is the header alignment numpy.save uses
	npyAlign = 64

	// magic, version and the 2-byte header length of an NPY 1.0 file
	npyPreamble = len(npy.Magic) + 2 + 2
)

// Int8Array is an n-dimensional int8 array stored in C order
type Int8Array struct {
	Shape []int
	Data  []int8
}

func (a Int8Array) String() string {
	lo, hi := int8(math.MaxInt8), int8(math.MinInt8)
	for _, s := range a.Data {
		lo, hi = min(lo, s), max(hi, s)
	}
	if len(a.Data) == 0 {
		lo, hi = 0, 0
	}
	return fmt.Sprintf("int8%s min=%d max=%d", shapeString(a.Shape), lo, hi)
}

// writeInt8Array writes a as an NPY 1.0 entry with its full shape. npy.Write
// only knows flat slices, so the header is built here the way numpy.save
// lays it out.
func writeInt8Array(w io.Writer, a Int8Array) error {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	if n != len(a.Data) {
		return fmt.Errorf("shape %v does not hold %d samples", a.Shape, len(a.Data))
	}

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", int8Descr, shapeString(a.Shape))
	padding := (npyAlign - (npyPreamble+len(dict)+1)%npyAlign) % npyAlign
	header := dict + strings.Repeat(" ", padding) + "\n"

	var buf bytes.Buffer
	buf.Write(npy.Magic[:])
	buf.Write([]byte{1, 0})
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}

	return binary.Write(w, binary.LittleEndian, a.Data)
}

// readInt8Array reads a C-order int8 entry of any shape
func readInt8Array(r *npy.Reader) (Int8Array, error) {
	hdr := r.Header.Descr
	if hdr.Type != int8Descr {
		return Int8Array{}, fmt.Errorf("dtype %s, want %s", hdr.Type, int8Descr)
	}
	if hdr.Fortran {
		return Int8Array{}, fmt.Errorf("fortran order is not supported")
	}

	var data []int8
	if err := r.Read(&data); err != nil {
		return Int8Array{}, err
	}

	return Int8Array{Shape: append([]int(nil), hdr.Shape...), Data: data}, nil
}

// readFloat64s reads a 1-D float64 entry
func readFloat64s(r *npy.Reader) ([]float64, error) {
	if shape := r.Header.Descr.Shape; len(shape) != 1 {
		return nil, fmt.Errorf("shape %s, want 1-D", shapeString(shape))
	}
	var v []float64
	err := r.Read(&v)
	return v, err
}

// readScalar reads a 0-d entry
func readScalar[T float64 | int64 | bool](r *npy.Reader) (T, error) {
	var v T
	if shape := r.Header.Descr.Shape; len(shape) != 0 {
		return v, fmt.Errorf("shape %s, want a scalar", shapeString(shape))
	}
	err := r.Read(&v)
	return v, err
}

// shapeString formats a shape like a Python tuple
func shapeString(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	if len(dims) == 1 {
		return "(" + dims[0] + ",)"
	}
	return "(" + strings.Join(dims, ", ") + ")"
}
