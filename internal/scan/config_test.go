package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func writeScanFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigs(t *testing.T) {
	dir := t.TempDir()

	writeScanFile(t, dir, "valid.json", `{
		"name": "AES forward S-box",
		"description": "AES substitution box",
		"type": "static",
		"flags": ["0x63", "0x7c"],
		"on_match": {"type": "symbol", "label": "AES_sbox"}
	}`)
	writeScanFile(t, dir, "disabled.json", `{
		"name": "Disabled scan",
		"description": "explicitly off",
		"type": "static",
		"flags": ["0x01"],
		"on_match": {"type": "symbol", "label": "off"},
		"enabled": false
	}`)
	writeScanFile(t, dir, "missing_fields.json", `{
		"name": "No flags here",
		"description": "missing flags and on_match",
		"type": "static"
	}`)
	writeScanFile(t, dir, "broken.json", `{not json at all`)
	writeScanFile(t, dir, "notes.txt", `not a definition`)

	configs, err := LoadConfigs(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(configs) != 2 {
		t.Fatalf("loaded %d configs, want 2", len(configs))
	}

	byName := make(map[string]*Config)
	for _, c := range configs {
		byName[c.Name] = c
	}

	aes, ok := byName["AES forward S-box"]
	if !ok {
		t.Fatal("valid config not loaded")
	}
	if !aes.Enabled {
		t.Error("enabled should default to true")
	}
	if aes.OnMatch.Type != MatchTypeSymbol || aes.OnMatch.Label != "AES_sbox" {
		t.Errorf("on_match = %+v", aes.OnMatch)
	}

	if off, ok := byName["Disabled scan"]; !ok {
		t.Error("disabled config should still load")
	} else if off.Enabled {
		t.Error("explicit enabled=false was ignored")
	}
}

func TestLoadConfigsMissingDir(t *testing.T) {
	if _, err := LoadConfigs(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestFlagBytes(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		want    []byte
		wantErr bool
	}{
		{name: "prefixed hex", flags: []string{"0x63", "0x7c"}, want: []byte{0x63, 0x7c}},
		{name: "bare hex", flags: []string{"63", "7c"}, want: []byte{0x63, 0x7c}},
		{name: "zero byte", flags: []string{"0x00"}, want: []byte{0x00}},
		{name: "empty flags", flags: nil, wantErr: true},
		{name: "not hex", flags: []string{"0xgg"}, wantErr: true},
		{name: "too wide", flags: []string{"0x100"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Name: "t", Flags: tt.flags}
			got, err := cfg.FlagBytes()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d bytes, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("byte %d = %#x, want %#x", i, got[i], tt.want[i])
				}
			}
		})
	}
}
