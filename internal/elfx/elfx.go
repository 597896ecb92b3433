// Package elfx provides helpers for opening ELF binaries, locating sections,
// mapping virtual addresses to file offsets, and maintaining a user-defined
// symbol table for scan results.
package elfx

import (
	"debug/elf"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/ianlancetaylor/demangle"
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Text     Section
	Rodata   Section
	Data     Section
	Syms     []Sym
	UserSyms []UserSym
	f        *os.File
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

// Sym is a symbol loaded from the binary's symbol tables, with its
// demangled name pre-computed.
type Sym struct {
	Name      string
	Demangled string
	Addr      uint64
	Size      uint64
}

// UserSym is a symbol defined by the tool itself, typically at the
// address of a scan match.
type UserSym struct {
	Addr  uint64
	Label string
	Kind  string
}

// demangleCache avoids re-demangling the same name; binaries repeat
// mangled names heavily across symbol tables.
var demangleCache = struct {
	sync.RWMutex
	m map[string]string
}{m: make(map[string]string)}

// CachedDemangle demangles an identifier with caching support.
func CachedDemangle(mangled string) string {
	demangleCache.RLock()
	cached, ok := demangleCache.m[mangled]
	demangleCache.RUnlock()
	if ok {
		return cached
	}

	demangled := demangle.Filter(mangled, demangle.NoClones)

	demangleCache.Lock()
	demangleCache.m[mangled] = demangled
	demangleCache.Unlock()
	return demangled
}

func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		f.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im := &Image{Path: path, File: f, All: all, f: of}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  uint64(p.Vaddr),
			Off:    uint64(p.Off),
			Filesz: uint64(p.Filesz),
			Flags:  p.Flags,
		})
	}
	sort.Slice(im.Loads, func(i, j int) bool { return im.Loads[i].Vaddr < im.Loads[j].Vaddr })

	// Use true sections if present.
	for _, s := range f.Sections {
		switch s.Name {
		case ".text":
			im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
		case ".rodata", ".rodata.rel.ro":
			if im.Rodata.Size == 0 {
				im.Rodata = Section{s.Name, s.Addr, s.Offset, s.Size}
			}
		case ".data":
			im.Data = Section{s.Name, s.Addr, s.Offset, s.Size}
		}
	}

	im.loadSymbols()

	// Fallbacks if stripped.
	if im.Text.Size == 0 {
		for _, l := range im.Loads {
			if l.Flags&elf.PF_X != 0 && l.Filesz > 0 {
				im.Text = Section{"LOAD(exec)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	if im.Rodata.Size == 0 {
		for _, l := range im.Loads {
			if (l.Flags&elf.PF_R != 0) && (l.Flags&elf.PF_W == 0) && l.Filesz > 0 {
				im.Rodata = Section{"LOAD(ro)", l.Vaddr, l.Off, l.Filesz}
				break
			}
		}
	}
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil {
		err1 = syscall.Munmap(im.All)
		im.All = nil
	}
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	return 0, false
}

// IsValidVA reports whether the virtual address is backed by file data.
func (im *Image) IsValidVA(va uint64) bool {
	_, ok := im.VA2Off(va)
	return ok
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual
// address range [va, va+size). It returns (nil, false) if the VA is unmapped
// or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

// ReadBytesVA reads exactly size bytes from a virtual address.
// Returns false if VA is unmapped or size extends beyond file bounds.
func (im *Image) ReadBytesVA(va uint64, size int) ([]byte, bool) {
	if size <= 0 {
		return []byte{}, true
	}
	return im.SliceVA(va, uint64(size))
}

// MinVA returns the lowest mapped virtual address.
func (im *Image) MinVA() uint64 {
	if len(im.Loads) == 0 {
		return 0
	}
	return im.Loads[0].Vaddr
}

// MaxVA returns one past the highest mapped virtual address.
func (im *Image) MaxVA() uint64 {
	var end uint64
	for _, l := range im.Loads {
		if l.Vaddr+l.Filesz > end {
			end = l.Vaddr + l.Filesz
		}
	}
	return end
}

// loadSymbols merges dynamic and static symbol tables. Either may be
// missing; stripped binaries simply yield an empty table.
func (im *Image) loadSymbols() {
	if im.File == nil {
		return
	}

	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			if sym.Value == 0 || sym.Name == "" {
				continue
			}
			im.Syms = append(im.Syms, Sym{
				Name:      sym.Name,
				Demangled: CachedDemangle(sym.Name),
				Addr:      sym.Value,
				Size:      sym.Size,
			})
		}
	}

	if dynsyms, err := im.File.DynamicSymbols(); err == nil {
		add(dynsyms)
	}
	if syms, err := im.File.Symbols(); err == nil {
		add(syms)
	}

	sort.Slice(im.Syms, func(i, j int) bool { return im.Syms[i].Addr < im.Syms[j].Addr })
}

// SymbolAt returns the symbol whose range covers va, preferring sized
// symbols. Returns false when no symbol encloses the address.
func (im *Image) SymbolAt(va uint64) (Sym, bool) {
	// Syms is sorted by address; find the last symbol at or below va.
	i := sort.Search(len(im.Syms), func(i int) bool { return im.Syms[i].Addr > va })
	for i > 0 {
		i--
		s := im.Syms[i]
		if s.Size > 0 {
			if va < s.Addr+s.Size {
				return s, true
			}
			return Sym{}, false
		}
		// Unsized symbol: accept as enclosing if nothing better precedes.
		return s, true
	}
	return Sym{}, false
}

// DefineSymbol records a user symbol at va. The address must be backed
// by mapped data; unmapped addresses are rejected.
func (im *Image) DefineSymbol(va uint64, label, kind string) error {
	if !im.IsValidVA(va) {
		return fmt.Errorf("invalid address for symbol %q: %#x", label, va)
	}
	im.UserSyms = append(im.UserSyms, UserSym{Addr: va, Label: label, Kind: kind})
	return nil
}
