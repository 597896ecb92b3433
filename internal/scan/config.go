// Package scan implements the crypto-construct scanning engine: the
// declarative signature model, constant extraction from lifted IR, the
// raw-byte and IL constant scanners, and the orchestrator that drives
// them over one run.
package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Scan types understood by the engine.
const (
	TypeStatic    = "static"
	TypeSignature = "signature"
)

// MatchTypeSymbol requests a symbol definition at each data match address.
const MatchTypeSymbol = "symbol"

// Config describes one signature to search for. Configs are built once at
// startup from JSON definitions and are read-only for the run.
type Config struct {
	Name        string   `json:"name" jsonschema:"title=Name,description=Unique human-readable label for the signature"`
	Description string   `json:"description" jsonschema:"title=Description,description=What construct this signature identifies"`
	Type        string   `json:"type" jsonschema:"title=Type,description=Scan type,enum=static,enum=signature"`
	Flags       []string `json:"flags" jsonschema:"title=Flags,description=Ordered hex byte tokens that define the constant"`
	OnMatch     OnMatch  `json:"on_match" jsonschema:"title=On Match,description=Action to take when the signature matches"`
	Enabled     bool     `json:"enabled" jsonschema:"title=Enabled,description=Whether the signature participates in scans,default=true"`
}

// OnMatch is the structured directive applied when a signature matches.
type OnMatch struct {
	Type  string `json:"type" jsonschema:"title=Match Type,description=Directive kind; symbol defines a symbol at the match address"`
	Label string `json:"label" jsonschema:"title=Label,description=Symbol label to apply"`
}

// FlagBytes parses the flag tokens into raw bytes. Tokens are hex with
// or without a 0x prefix; anything outside [0,255] is an error. Callers
// fail the individual scan on error, never the whole run.
func (c *Config) FlagBytes() ([]byte, error) {
	if len(c.Flags) == 0 {
		return nil, fmt.Errorf("config %q: empty flags", c.Name)
	}
	out := make([]byte, len(c.Flags))
	for i, tok := range c.Flags {
		v, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("config %q: flag %d (%q): %w", c.Name, i, tok, err)
		}
		if v > 0xff {
			return nil, fmt.Errorf("config %q: flag %d (%q): not a single byte", c.Name, i, tok)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// requiredFields must all be present in a definition file for it to load.
var requiredFields = []string{"name", "description", "type", "flags", "on_match"}

// LoadConfigs reads every *.json signature definition in dir. Definitions
// missing required fields are skipped with a logged filename; only an
// unreadable directory is an error.
func LoadConfigs(dir string, logger *log.Logger) ([]*Config, error) {
	if logger == nil {
		logger = log.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scan directory: %w", err)
	}

	var configs []*Config
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			logger.Error("Unreadable config file", "file", entry.Name(), "error", err)
			continue
		}

		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			logger.Error("Invalid config file", "file", entry.Name(), "error", err)
			continue
		}
		if missing := missingFields(raw); len(missing) > 0 {
			logger.Error("Invalid config file", "file", entry.Name(), "missing", strings.Join(missing, ","))
			continue
		}

		cfg := &Config{Enabled: true}
		if err := json.Unmarshal(data, cfg); err != nil {
			logger.Error("Invalid config file", "file", entry.Name(), "error", err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func missingFields(raw map[string]json.RawMessage) []string {
	var missing []string
	for _, field := range requiredFields {
		if _, ok := raw[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}
