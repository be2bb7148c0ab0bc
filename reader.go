// Copyright 2024 Metabolon. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package rawspec

import (
	"encoding/binary"
	"math"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"golang.org/x/text/encoding/unicode"
)

// byteSource is the bounded random-access surface every container component
// reads through. It never panics on a bad offset; every method validates
// offset+width against the backing length first and returns a *BoundsError
// otherwise. Two backends satisfy it: ownedBuffer (a fully-loaded []byte)
// and mappedBuffer (an mmap.MMap region). Both have identical semantics;
// only PreferLargeReads differs.
type byteSource interface {
	ReadUint8(offset uint32) (uint8, error)
	ReadUint16(offset uint32) (uint16, error)
	ReadInt16(offset uint32) (int16, error)
	ReadUint32(offset uint32) (uint32, error)
	ReadInt32(offset uint32) (int32, error)
	ReadUint64(offset uint32) (uint64, error)
	ReadInt64(offset uint32) (int64, error)
	ReadFloat32(offset uint32) (float32, error)
	ReadFloat64(offset uint32) (float64, error)
	ReadBytes(offset, n uint32) ([]byte, error)
	ReadWideString(offset uint32) (string, uint32, error)
	Len() uint32
	PreferLargeReads() bool
	Close() error
}

// checkBounds validates a read of width bytes at offset against length,
// rejecting both a plain out-of-range read and the overflow case where
// offset+width wraps around uint32: a bounds-then-read discipline applied
// before every typed field access.
func checkBounds(offset, width, length uint32) error {
	total := offset + width
	if total < offset {
		return &BoundsError{Offset: offset, Need: width, Have: length}
	}
	if total > length {
		return &BoundsError{Offset: offset, Need: width, Have: length}
	}
	return nil
}

// ownedBuffer backs a fully-loaded container read into memory with os.ReadFile.
type ownedBuffer struct {
	data []byte
}

func newOwnedBuffer(path string) (*ownedBuffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ownedBuffer{data: data}, nil
}

func (b *ownedBuffer) Len() uint32            { return uint32(len(b.data)) }
func (b *ownedBuffer) PreferLargeReads() bool { return false }
func (b *ownedBuffer) Close() error           { return nil }

func (b *ownedBuffer) ReadUint8(offset uint32) (uint8, error) {
	if err := checkBounds(offset, 1, b.Len()); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

func (b *ownedBuffer) ReadUint16(offset uint32) (uint16, error) {
	if err := checkBounds(offset, 2, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[offset:]), nil
}

func (b *ownedBuffer) ReadInt16(offset uint32) (int16, error) {
	v, err := b.ReadUint16(offset)
	return int16(v), err
}

func (b *ownedBuffer) ReadUint32(offset uint32) (uint32, error) {
	if err := checkBounds(offset, 4, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

func (b *ownedBuffer) ReadInt32(offset uint32) (int32, error) {
	v, err := b.ReadUint32(offset)
	return int32(v), err
}

func (b *ownedBuffer) ReadUint64(offset uint32) (uint64, error) {
	if err := checkBounds(offset, 8, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[offset:]), nil
}

func (b *ownedBuffer) ReadInt64(offset uint32) (int64, error) {
	v, err := b.ReadUint64(offset)
	return int64(v), err
}

func (b *ownedBuffer) ReadFloat32(offset uint32) (float32, error) {
	v, err := b.ReadUint32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *ownedBuffer) ReadFloat64(offset uint32) (float64, error) {
	v, err := b.ReadUint64(offset)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (b *ownedBuffer) ReadBytes(offset, n uint32) ([]byte, error) {
	if err := checkBounds(offset, n, b.Len()); err != nil {
		return nil, err
	}
	return b.data[offset : offset+n], nil
}

func (b *ownedBuffer) ReadWideString(offset uint32) (string, uint32, error) {
	return readWideString(b, offset)
}

// mappedBuffer backs a memory-mapped container. PreferLargeReads reports
// true; no code in this package currently acts on that hint.
type mappedBuffer struct {
	f    *os.File
	data mmap.MMap
}

func newMappedBuffer(path string) (*mappedBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &mappedBuffer{f: f, data: data}, nil
}

func (b *mappedBuffer) Len() uint32            { return uint32(len(b.data)) }
func (b *mappedBuffer) PreferLargeReads() bool { return true }

func (b *mappedBuffer) Close() error {
	err := b.data.Unmap()
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *mappedBuffer) ReadUint8(offset uint32) (uint8, error) {
	if err := checkBounds(offset, 1, b.Len()); err != nil {
		return 0, err
	}
	return b.data[offset], nil
}

func (b *mappedBuffer) ReadUint16(offset uint32) (uint16, error) {
	if err := checkBounds(offset, 2, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.data[offset:]), nil
}

func (b *mappedBuffer) ReadInt16(offset uint32) (int16, error) {
	v, err := b.ReadUint16(offset)
	return int16(v), err
}

func (b *mappedBuffer) ReadUint32(offset uint32) (uint32, error) {
	if err := checkBounds(offset, 4, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.data[offset:]), nil
}

func (b *mappedBuffer) ReadInt32(offset uint32) (int32, error) {
	v, err := b.ReadUint32(offset)
	return int32(v), err
}

func (b *mappedBuffer) ReadUint64(offset uint32) (uint64, error) {
	if err := checkBounds(offset, 8, b.Len()); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.data[offset:]), nil
}

func (b *mappedBuffer) ReadInt64(offset uint32) (int64, error) {
	v, err := b.ReadUint64(offset)
	return int64(v), err
}

func (b *mappedBuffer) ReadFloat32(offset uint32) (float32, error) {
	v, err := b.ReadUint32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func (b *mappedBuffer) ReadFloat64(offset uint32) (float64, error) {
	v, err := b.ReadUint64(offset)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (b *mappedBuffer) ReadBytes(offset, n uint32) ([]byte, error) {
	if err := checkBounds(offset, n, b.Len()); err != nil {
		return nil, err
	}
	return b.data[offset : offset+n], nil
}

func (b *mappedBuffer) ReadWideString(offset uint32) (string, uint32, error) {
	return readWideString(b, offset)
}

// wideStringDecoder decodes length-prefixed, 16-bit little-endian wide
// character strings shared by both backends.
var wideStringDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// readWideString reads a u32 code-unit count followed by that many 16-bit
// little-endian code units, and decodes them to a Go string. It returns the
// number of bytes consumed (4 + 2*count) so callers can advance a cursor.
func readWideString(src byteSource, offset uint32) (string, uint32, error) {
	count, err := src.ReadUint32(offset)
	if err != nil {
		return "", 0, err
	}
	byteLen := count * 2
	raw, err := src.ReadBytes(offset+4, byteLen)
	if err != nil {
		return "", 0, err
	}
	decoded, err := wideStringDecoder.NewDecoder().Bytes(raw)
	if err != nil {
		return "", 0, err
	}
	return string(decoded), 4 + byteLen, nil
}
