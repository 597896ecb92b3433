package scan

import (
	"context"
	"strings"
	"testing"
)

// memReader is a ByteReader over an in-memory byte slice mapped at a
// base offset, with optional invalid holes.
type memReader struct {
	base    uint64
	data    []byte
	invalid map[uint64]bool
	off     uint64

	reads  int
	onRead func(reads int)
}

func newMemReader(base uint64, data []byte) *memReader {
	return &memReader{base: base, data: data, off: base}
}

func (r *memReader) Offset() uint64           { return r.off }
func (r *memReader) SeekRelative(delta int64) { r.off = uint64(int64(r.off) + delta) }
func (r *memReader) Length() uint64           { return uint64(len(r.data)) }
func (r *memReader) EOF() bool                { return r.off >= r.base+uint64(len(r.data)) }
func (r *memReader) IsValidOffset(off uint64) bool {
	if off < r.base || off >= r.base+uint64(len(r.data)) {
		return false
	}
	return !r.invalid[off]
}

func (r *memReader) ReadByte() (byte, bool) {
	if !r.IsValidOffset(r.off) {
		return 0, false
	}
	b := r.data[r.off-r.base]
	r.off++
	r.reads++
	if r.onRead != nil {
		r.onRead(r.reads)
	}
	return b, true
}

func TestDataScanner(t *testing.T) {
	tests := []struct {
		name     string
		config   *Config
		base     uint64
		data     []byte
		invalid  []uint64
		wantAddr []uint64
	}{
		{
			name:     "single flag matches every trigger occurrence",
			config:   staticConfig("Trigger", "0x4b"),
			base:     0,
			data:     []byte{0x4b, 0x00, 0x4b, 0x11, 0x4b},
			wantAddr: []uint64{0, 2, 4},
		},
		{
			name:     "contiguous sequence",
			config:   staticConfig("Seq", "0xaa", "0xbb", "0xcc"),
			base:     0x1000,
			data:     []byte{0x00, 0xaa, 0xbb, 0xcc, 0x00},
			wantAddr: []uint64{0x1001},
		},
		{
			name:     "null byte sought and accepted",
			config:   staticConfig("Null", "0xaa", "0x00", "0xbb"),
			base:     100,
			data:     []byte{0xaa, 0x00, 0xbb},
			wantAddr: []uint64{100},
		},
		{
			name:     "zero padding skipped within bound",
			config:   staticConfig("Padded", "0xaa", "0xbb"),
			base:     0,
			data:     []byte{0xaa, 0x00, 0x00, 0x00, 0xbb},
			wantAddr: []uint64{0},
		},
		{
			name:   "padding beyond lookahead bound misses",
			config: staticConfig("FarApart", "0xaa", "0xbb"),
			base:   0,
			data: append(append([]byte{0xaa}, make([]byte, 16)...),
				0xbb),
			wantAddr: nil,
		},
		{
			name:   "padding at lookahead bound still matches",
			config: staticConfig("Boundary", "0xaa", "0xbb"),
			base:   0,
			data: append(append([]byte{0xaa}, make([]byte, 14)...),
				0xbb),
			wantAddr: []uint64{0},
		},
		{
			name:     "wrong byte after trigger",
			config:   staticConfig("Seq", "0xaa", "0xbb"),
			base:     0,
			data:     []byte{0xaa, 0xcc, 0xbb},
			wantAddr: nil,
		},
		{
			name:     "truncated at end of data",
			config:   staticConfig("Seq", "0xaa", "0xbb", "0xcc"),
			base:     0,
			data:     []byte{0x00, 0xaa, 0xbb},
			wantAddr: nil,
		},
		{
			name:     "second trigger examined after first fails",
			config:   staticConfig("Overlap", "0xaa", "0xaa", "0xbb"),
			base:     0,
			data:     []byte{0xaa, 0xaa, 0xaa, 0xbb},
			wantAddr: []uint64{0x1},
		},
		{
			name:     "invalid offsets skipped without error",
			config:   staticConfig("Gap", "0xaa", "0xbb"),
			base:     0,
			data:     []byte{0x11, 0x00, 0xaa, 0xbb},
			invalid:  []uint64{1},
			wantAddr: []uint64{2},
		},
		{
			name:     "disabled config produces nothing",
			config:   func() *Config { c := staticConfig("Off", "0xaa"); c.Enabled = false; return c }(),
			base:     0,
			data:     []byte{0xaa},
			wantAddr: nil,
		},
		{
			name:     "malformed flags fail the scan not the run",
			config:   staticConfig("Broken", "0xaa", "oops"),
			base:     0,
			data:     []byte{0xaa, 0xbb},
			wantAddr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newMemReader(tt.base, tt.data)
			if len(tt.invalid) > 0 {
				r.invalid = make(map[uint64]bool)
				for _, off := range tt.invalid {
					r.invalid[off] = true
				}
			}

			s := &DataScanner{}
			got := s.Scan(context.Background(), r, []*Config{tt.config})

			if len(got) != len(tt.wantAddr) {
				t.Fatalf("got %d matches %v, want %d", len(got), got, len(tt.wantAddr))
			}
			for i, m := range got {
				if m.Kind != MatchDataConstant {
					t.Errorf("match %d kind = %v, want data constant", i, m.Kind)
				}
				if m.Addr != tt.wantAddr[i] {
					t.Errorf("match %d address = %#x, want %#x", i, m.Addr, tt.wantAddr[i])
				}
			}
		})
	}
}

func TestDataScannerOverlappingTriggerPair(t *testing.T) {
	// AA AA BB: the first trigger fails its lookahead (AA is not BB at
	// the second flag position... it is AA), and the second trigger at
	// offset 1 must still be examined after the cursor restore.
	cfg := staticConfig("Pair", "0xaa", "0xbb")
	r := newMemReader(0, []byte{0xaa, 0xaa, 0xbb})

	s := &DataScanner{}
	got := s.Scan(context.Background(), r, []*Config{cfg})
	if len(got) != 1 || got[0].Addr != 1 {
		t.Fatalf("got %v, want one match at 0x1", got)
	}
}

func TestDataScannerIdempotent(t *testing.T) {
	cfg := staticConfig("Seq", "0xaa", "0x00", "0xbb")
	data := []byte{0xaa, 0x00, 0xbb, 0x55, 0xaa, 0x00, 0xbb}

	run := func() []Match {
		s := &DataScanner{}
		return s.Scan(context.Background(), newMemReader(0x2000, data), []*Config{cfg})
	}

	first := run()
	second := run()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("got %d then %d matches, want 2 and 2", len(first), len(second))
	}
	for i := range first {
		if first[i].Addr != second[i].Addr {
			t.Errorf("match %d: %#x then %#x", i, first[i].Addr, second[i].Addr)
		}
	}
}

func TestDataScannerCancellation(t *testing.T) {
	cfg := staticConfig("Seq", "0xaa", "0xbb")
	data := make([]byte, 256)
	data[0], data[1] = 0xaa, 0xbb
	data[200], data[201] = 0xaa, 0xbb

	ctx, cancel := context.WithCancel(context.Background())
	r := newMemReader(0, data)
	r.onRead = func(reads int) {
		if reads == 100 {
			cancel()
		}
	}

	s := &DataScanner{}
	got := s.Scan(ctx, r, []*Config{cfg})
	if len(got) != 1 {
		t.Fatalf("got %d matches after cancellation, want 1 partial result", len(got))
	}
	if got[0].Addr != 0 {
		t.Errorf("partial match address = %#x, want 0", got[0].Addr)
	}
}

func TestDataScannerCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &DataScanner{}
	got := s.Scan(ctx, newMemReader(0, []byte{0x4b}), []*Config{staticConfig("Trigger", "0x4b")})
	if len(got) != 0 {
		t.Fatalf("got %d matches from a cancelled scan, want 0", len(got))
	}
}

func TestDataScannerProgress(t *testing.T) {
	cfg := staticConfig("Trigger", "0xff")
	data := make([]byte, 1000)

	var updates []string
	s := &DataScanner{Progress: func(msg string) { updates = append(updates, msg) }}
	s.Scan(context.Background(), newMemReader(0, data), []*Config{cfg})

	if len(updates) == 0 {
		t.Fatal("no progress updates emitted")
	}

	seen := make(map[string]bool)
	lastPct := -1
	for _, u := range updates {
		if !strings.Contains(u, "Scanning data for constants") {
			t.Errorf("unexpected progress message %q", u)
		}
		if seen[u] {
			t.Errorf("progress message %q repeated", u)
		}
		seen[u] = true

		pct, ok := progressPercent(u)
		if !ok {
			t.Fatalf("unparseable progress message %q", u)
		}
		if pct <= lastPct {
			t.Errorf("progress not monotonic: %d after %d", pct, lastPct)
		}
		lastPct = pct
	}
}

// progressPercent pulls the percentage out of a progress line.
func progressPercent(msg string) (int, bool) {
	open := strings.LastIndex(msg, "(")
	end := strings.LastIndex(msg, "%)")
	if open == -1 || end == -1 || end < open {
		return 0, false
	}
	n := 0
	for _, ch := range msg[open+1 : end] {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}
