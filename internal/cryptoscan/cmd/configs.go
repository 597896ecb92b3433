package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"cryptoscan/internal/logging"
	"cryptoscan/internal/scan"
	"cryptoscan/internal/ui/colorize"
)

var configsShowJSON bool

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "List the loaded signature definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		lc := logging.NewLogger()
		defer lc.Close()

		configs, err := scan.LoadConfigs(scansDir, lc.Logger)
		if err != nil {
			return err
		}

		for _, cfg := range configs {
			if configsShowJSON {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal config %q: %w", cfg.Name, err)
				}
				highlighted, _ := colorize.JSON(string(data))
				fmt.Println(highlighted)
				continue
			}

			state := ""
			if !cfg.Enabled {
				state = "  (disabled)"
			}
			fmt.Printf("%-28s %-10s %3d flag bytes%s\n", cfg.Name, cfg.Type, len(cfg.Flags), state)
			if cfg.Description != "" {
				fmt.Printf("    %s\n", cfg.Description)
			}
		}
		return nil
	},
}

func init() {
	configsCmd.Flags().BoolVar(&configsShowJSON, "json", false, "Print full definitions as highlighted JSON")
	configsCmd.Flags().StringVar(&scansDir, "scans", "scans", "Directory of signature definition files")
}
