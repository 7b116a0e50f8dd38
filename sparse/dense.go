package sparse

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Dense is a column-major block of complex values. A right-hand side or a
// wavefield for a single source is a Dense with one column; a batch of
// sources is a Dense with one column per source.
type Dense struct {
	rows, cols int
	data       []complex128
}

// NewVector wraps v as a single-column block. The slice is not copied.
func NewVector(v []complex128) *Dense {
	return &Dense{rows: len(v), cols: 1, data: v}
}

// NewDense wraps data, laid out column by column, as a rows x cols block.
// A nil data allocates a zero block.
func NewDense(rows, cols int, data []complex128) *Dense {
	if data == nil {
		data = make([]complex128, rows*cols)
	}

	if len(data) != rows*cols {
		panic(fmt.Sprintf("sparse: %d values cannot fill a %dx%d block",
			len(data), rows, cols))
	}

	return &Dense{rows: rows, cols: cols, data: data}
}

// Dims returns the number of rows and columns.
func (d *Dense) Dims() (int, int) {
	return d.rows, d.cols
}

// Data returns the underlying column-major storage.
func (d *Dense) Data() []complex128 {
	return d.data
}

// Col returns column j. The returned slice aliases the block.
func (d *Dense) Col(j int) []complex128 {
	return d.data[j*d.rows : (j+1)*d.rows]
}

// At returns the value at (i, j).
func (d *Dense) At(i, j int) complex128 {
	return d.data[j*d.rows+i]
}

// Clone returns a deep copy.
func (d *Dense) Clone() *Dense {
	data := make([]complex128, len(d.data))
	copy(data, d.data)

	return &Dense{rows: d.rows, cols: d.cols, data: data}
}

// Scale returns k·d as a new block. Scaling by one still copies, so callers
// always own the result.
func (d *Dense) Scale(k complex128) *Dense {
	out := d.Clone()
	if k == 1 {
		return out
	}

	for i := range out.data {
		out.data[i] *= k
	}

	return out
}

type denseWire struct {
	Rows, Cols int
	Data       []complex128
}

// GobEncode implements gob.GobEncoder.
func (d *Dense) GobEncode() ([]byte, error) {
	var buf bytes.Buffer

	err := gob.NewEncoder(&buf).Encode(denseWire{
		Rows: d.rows,
		Cols: d.cols,
		Data: d.data,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (d *Dense) GobDecode(b []byte) error {
	var w denseWire
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&w); err != nil {
		return err
	}

	if len(w.Data) != w.Rows*w.Cols {
		return fmt.Errorf("%w: %d values for a %dx%d block",
			ErrShape, len(w.Data), w.Rows, w.Cols)
	}

	d.rows, d.cols, d.data = w.Rows, w.Cols, w.Data

	return nil
}
