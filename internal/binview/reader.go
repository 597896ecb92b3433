// Package binview exposes a cursor-based byte reader over the mapped
// virtual address space of an ELF image. Gaps between load segments
// report as invalid offsets rather than errors, so a linear scan can
// step across them.
package binview

import "cryptoscan/internal/elfx"

// Reader walks the image's virtual address range one byte at a time.
// It owns only its cursor; the underlying image is read-only.
type Reader struct {
	im    *elfx.Image
	start uint64
	end   uint64
	off   uint64
}

// New positions a reader at the lowest mapped virtual address.
func New(im *elfx.Image) *Reader {
	return &Reader{
		im:    im,
		start: im.MinVA(),
		end:   im.MaxVA(),
		off:   im.MinVA(),
	}
}

// Offset returns the current cursor position as a virtual address.
func (r *Reader) Offset() uint64 {
	return r.off
}

// SeekRelative moves the cursor by delta bytes. The cursor may land on
// an invalid offset; reads there fail without advancing.
func (r *Reader) SeekRelative(delta int64) {
	r.off = uint64(int64(r.off) + delta)
}

// Length returns the total distance of the walkable address range.
func (r *Reader) Length() uint64 {
	if r.end < r.start {
		return 0
	}
	return r.end - r.start
}

// EOF reports whether the cursor has passed the last mapped address.
func (r *Reader) EOF() bool {
	return r.off >= r.end
}

// IsValidOffset reports whether the virtual address is backed by file data.
func (r *Reader) IsValidOffset(off uint64) bool {
	return r.im.IsValidVA(off)
}

// ReadByte reads the byte at the cursor and advances by one. It returns
// false without advancing when the cursor sits on an unmapped address or
// past end-of-data.
func (r *Reader) ReadByte() (byte, bool) {
	if r.off >= r.end {
		return 0, false
	}
	b, ok := r.im.ReadBytesVA(r.off, 1)
	if !ok || len(b) != 1 {
		return 0, false
	}
	r.off++
	return b[0], true
}
