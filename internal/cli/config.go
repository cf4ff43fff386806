package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Wojt3kW/ocrpdf/internal/clientconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage client configuration",
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(dimStyle.Render("# " + cfg.Path()))
		for _, key := range clientconfig.Keys() {
			value, err := cfg.Get(key)
			if err != nil {
				return err
			}
			if key == "server.api_key" {
				value = maskKey(value)
			}
			fmt.Printf("%s = %s\n", key, value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := cfg.Set(key, value); err != nil {
			return err
		}

		if err := cfg.Save(); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		if key == "server.api_key" {
			value = maskKey(value)
		}
		fmt.Printf("%s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
