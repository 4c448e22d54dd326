// Copyright 2011 The Go Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
)

// wordSize is the on-disk size, in bytes, of the two element types Mapped
// is instantiated with here: uint32 (directory entries) and uint64 (page
// words). Mapped itself stays generic over the element size so both can
// share the open/remap/close machinery.
type wordSize int

const (
	size32 wordSize = 4
	size64 wordSize = 8
)

// A Mapped region owns a file and a shared memory mapping of its
// contents, exposed as a fixed-length array of native-endian fixed-width
// words. It is not safe for concurrent use; callers follow a single-writer
// model.
type Mapped struct {
	file *os.File
	mm   mmap.MMap
	elem wordSize
	len  int // element count
}

// openMapped creates or opens path, sets its length to length*elem bytes,
// and maps it shared read/write.
func openMapped(path string, length int, elem wordSize) (*Mapped, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	size := int64(length) * int64(elem)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sizing %s to %d bytes: %w", path, size, err)
	}

	mm, err := mmap.MapRegion(f, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}

	return &Mapped{file: f, mm: mm, elem: elem, len: length}, nil
}

// Len returns the number of elem-sized elements currently mapped.
func (m *Mapped) Len() int {
	return m.len
}

// Remap grows the backing file to newLength elements and remaps it. There
// is no portable mremap(2) equivalent in mmap-go, so this unmaps, grows
// the file, and maps again; callers must not hold any view into the old
// mapping across a call to Remap (the same invalidation contract as a
// native mremap that moved the base address).
func (m *Mapped) Remap(newLength int) error {
	if err := m.mm.Unmap(); err != nil {
		return fmt.Errorf("unmapping %s: %w", m.file.Name(), err)
	}

	size := int64(newLength) * int64(m.elem)
	if err := m.file.Truncate(size); err != nil {
		return fmt.Errorf("growing %s to %d bytes: %w", m.file.Name(), size, err)
	}

	mm, err := mmap.MapRegion(m.file, int(size), mmap.RDWR, 0, 0)
	if err != nil {
		return fmt.Errorf("remapping %s: %w", m.file.Name(), err)
	}

	m.mm = mm
	m.len = newLength
	return nil
}

// Close unmaps the region. The underlying file is left on disk and its
// descriptor closed.
func (m *Mapped) Close() error {
	if err := m.mm.Unmap(); err != nil {
		return err
	}
	return m.file.Close()
}

// FileLen returns the current size of the backing file, in bytes.
func (m *Mapped) FileLen() (int64, error) {
	fi, err := m.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// get32 reads the uint32 at element index i.
func (m *Mapped) get32(i int) uint32 {
	off := i * int(size32)
	return binary.NativeEndian.Uint32(m.mm[off : off+4])
}

// set32 writes the uint32 at element index i.
func (m *Mapped) set32(i int, v uint32) {
	off := i * int(size32)
	binary.NativeEndian.PutUint32(m.mm[off:off+4], v)
}

// get64 reads the uint64 at element index i.
func (m *Mapped) get64(i int) uint64 {
	off := i * int(size64)
	return binary.NativeEndian.Uint64(m.mm[off : off+8])
}

// set64 writes the uint64 at element index i.
func (m *Mapped) set64(i int, v uint64) {
	off := i * int(size64)
	binary.NativeEndian.PutUint64(m.mm[off:off+8], v)
}
