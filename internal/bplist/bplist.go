// Package bplist decodes Apple binary property lists into generic Go values.
//
// The decoder knows nothing about webarchives; it turns the bplist byte
// format into nested values of these concrete types:
//
//	map[string]any  dictionaries
//	[]any           arrays and sets
//	string          ASCII and UTF-16BE strings
//	[]byte          data objects
//	int64           integers and UIDs
//	float64         reals and dates (seconds since the Apple epoch)
//	bool, nil       booleans and null
//
// The format stores a flat object table, an offset table mapping object
// index to byte offset, and a fixed-size trailer at the end of the file
// giving the table geometry. Integer widths for both offsets and object
// references are declared in the trailer and may be 1, 2, 4 or 8 bytes.
package bplist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// maxDepth bounds container nesting so that self-referential or adversarial
// offset tables terminate instead of recursing without bound.
const maxDepth = 512

const (
	headerLen  = 8
	trailerLen = 32
)

var errDepth = errors.New("container nesting exceeds depth limit")

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()

// Decode parses a binary property list and returns its root object.
// Any structural defect, including out-of-range offsets or references,
// yields an error; Decode never panics or loops on hostile input.
func Decode(data []byte) (any, error) {
	if len(data) < headerLen+trailerLen+1 {
		return nil, fmt.Errorf("bplist: input too short (%d bytes)", len(data))
	}
	if string(data[:7]) != "bplist0" {
		return nil, errors.New("bplist: missing bplist00 magic header")
	}

	trailer := data[len(data)-trailerLen:]
	d := &decoder{
		data:      data,
		offSize:   int(trailer[6]),
		refSize:   int(trailer[7]),
		numObjs:   binary.BigEndian.Uint64(trailer[8:16]),
		topObject: binary.BigEndian.Uint64(trailer[16:24]),
		tableOff:  binary.BigEndian.Uint64(trailer[24:32]),
	}
	if err := d.readOffsetTable(); err != nil {
		return nil, err
	}

	root, err := d.object(d.topObject, 0)
	if err != nil {
		if errors.Is(err, errDepth) {
			return nil, fmt.Errorf("bplist: %w", err)
		}
		return nil, err
	}
	return root, nil
}

type decoder struct {
	data      []byte
	offSize   int
	refSize   int
	numObjs   uint64
	topObject uint64
	tableOff  uint64
	offsets   []uint64
}

// readOffsetTable validates the trailer geometry and loads the offset table.
// Every bound is checked against the input length before allocation so a
// forged object count cannot drive a large allocation.
func (d *decoder) readOffsetTable() error {
	n := uint64(len(d.data))
	if d.offSize < 1 || d.offSize > 8 {
		return fmt.Errorf("bplist: invalid offset entry width %d", d.offSize)
	}
	if d.refSize < 1 || d.refSize > 8 {
		return fmt.Errorf("bplist: invalid object reference width %d", d.refSize)
	}
	if d.numObjs == 0 {
		return errors.New("bplist: zero objects")
	}
	if d.numObjs > n {
		return fmt.Errorf("bplist: object count %d exceeds input size", d.numObjs)
	}
	if d.topObject >= d.numObjs {
		return fmt.Errorf("bplist: root object index %d out of range", d.topObject)
	}
	tableLen := d.numObjs * uint64(d.offSize)
	if d.tableOff < headerLen || d.tableOff > n || d.tableOff+tableLen > n-trailerLen {
		return fmt.Errorf("bplist: offset table [%d,%d) out of bounds", d.tableOff, d.tableOff+tableLen)
	}

	d.offsets = make([]uint64, d.numObjs)
	for i := range d.offsets {
		p := d.tableOff + uint64(i)*uint64(d.offSize)
		off := sizedInt(d.data[p : p+uint64(d.offSize)])
		if off < headerLen || off >= d.tableOff {
			return fmt.Errorf("bplist: object %d offset %d out of bounds", i, off)
		}
		d.offsets[i] = off
	}
	return nil
}

// object resolves the object at the given index, recursing into containers.
func (d *decoder) object(ref uint64, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errDepth
	}
	if ref >= d.numObjs {
		return nil, fmt.Errorf("bplist: object reference %d out of range", ref)
	}
	pos := d.offsets[ref]
	marker := d.data[pos]
	kind, info := marker>>4, uint64(marker&0x0f)

	switch kind {
	case 0x0:
		switch info {
		case 0x0:
			return nil, nil
		case 0x8:
			return false, nil
		case 0x9:
			return true, nil
		}
		return nil, fmt.Errorf("bplist: unrecognized singleton marker 0x%02x", marker)

	case 0x1: // integer, 2^info bytes big-endian
		width := uint64(1) << info
		if width > 8 {
			return nil, fmt.Errorf("bplist: unsupported integer width %d", width)
		}
		b, err := d.slice(pos+1, width)
		if err != nil {
			return nil, err
		}
		return int64(sizedInt(b)), nil

	case 0x2: // real, 2^info bytes
		width := uint64(1) << info
		b, err := d.slice(pos+1, width)
		if err != nil {
			return nil, err
		}
		switch width {
		case 4:
			return float64(math.Float32frombits(uint32(sizedInt(b)))), nil
		case 8:
			return math.Float64frombits(sizedInt(b)), nil
		}
		return nil, fmt.Errorf("bplist: unsupported real width %d", width)

	case 0x3: // date: 8-byte float64, seconds since 2001-01-01
		if info != 0x3 {
			return nil, fmt.Errorf("bplist: unrecognized date marker 0x%02x", marker)
		}
		b, err := d.slice(pos+1, 8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(sizedInt(b)), nil

	case 0x4: // data
		count, body, err := d.count(pos, info)
		if err != nil {
			return nil, err
		}
		b, err := d.slice(body, count)
		if err != nil {
			return nil, err
		}
		out := make([]byte, count)
		copy(out, b)
		return out, nil

	case 0x5: // ASCII string
		count, body, err := d.count(pos, info)
		if err != nil {
			return nil, err
		}
		b, err := d.slice(body, count)
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case 0x6: // UTF-16BE string, count is in code units
		count, body, err := d.count(pos, info)
		if err != nil {
			return nil, err
		}
		b, err := d.slice(body, count*2)
		if err != nil {
			return nil, err
		}
		s, err := utf16be.Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("bplist: invalid UTF-16 string: %w", err)
		}
		return string(s), nil

	case 0x8: // UID, info+1 bytes
		b, err := d.slice(pos+1, info+1)
		if err != nil {
			return nil, err
		}
		return int64(sizedInt(b)), nil

	case 0xa, 0xc: // array, set
		count, body, err := d.count(pos, info)
		if err != nil {
			return nil, err
		}
		refs, err := d.refs(body, count)
		if err != nil {
			return nil, err
		}
		arr := make([]any, 0, count)
		for _, r := range refs {
			v, err := d.object(r, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil

	case 0xd: // dict: count key refs then count value refs
		count, body, err := d.count(pos, info)
		if err != nil {
			return nil, err
		}
		keyRefs, err := d.refs(body, count)
		if err != nil {
			return nil, err
		}
		valRefs, err := d.refs(body+count*uint64(d.refSize), count)
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, count)
		for i := uint64(0); i < count; i++ {
			k, err := d.object(keyRefs[i], depth+1)
			if err != nil {
				return nil, err
			}
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("bplist: dictionary key is %T, want string", k)
			}
			v, err := d.object(valRefs[i], depth+1)
			if err != nil {
				return nil, err
			}
			m[key] = v
		}
		return m, nil
	}
	return nil, fmt.Errorf("bplist: unrecognized type marker 0x%02x", marker)
}

// count reads the element count for a variable-size object. Small counts
// live in the marker's low nibble; 0xF means an integer object follows.
// Returns the count and the offset of the object body.
func (d *decoder) count(pos uint64, info uint64) (uint64, uint64, error) {
	if info != 0xf {
		return info, pos + 1, nil
	}
	b, err := d.slice(pos+1, 1)
	if err != nil {
		return 0, 0, err
	}
	marker := b[0]
	if marker>>4 != 0x1 {
		return 0, 0, fmt.Errorf("bplist: expected integer count marker, got 0x%02x", marker)
	}
	width := uint64(1) << (marker & 0x0f)
	if width > 8 {
		return 0, 0, fmt.Errorf("bplist: unsupported count width %d", width)
	}
	cb, err := d.slice(pos+2, width)
	if err != nil {
		return 0, 0, err
	}
	count := sizedInt(cb)
	if count > uint64(len(d.data)) {
		return 0, 0, fmt.Errorf("bplist: element count %d exceeds input size", count)
	}
	return count, pos + 2 + width, nil
}

// refs reads count object references of the trailer-declared width.
func (d *decoder) refs(pos, count uint64) ([]uint64, error) {
	w := uint64(d.refSize)
	b, err := d.slice(pos, count*w)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	for i := uint64(0); i < count; i++ {
		out[i] = sizedInt(b[i*w : (i+1)*w])
	}
	return out, nil
}

// slice returns data[pos:pos+n] with overflow-safe bounds checking.
func (d *decoder) slice(pos, n uint64) ([]byte, error) {
	end := pos + n
	if end < pos || end > uint64(len(d.data)) {
		return nil, fmt.Errorf("bplist: object bytes [%d,%d) out of bounds", pos, end)
	}
	return d.data[pos:end], nil
}

// sizedInt reads a big-endian unsigned integer of 1 to 8 bytes.
func sizedInt(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
