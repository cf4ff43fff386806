package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show server health",
	RunE:  runHealth,
}

func init() {
	healthCmd.Flags().Bool("json", false, "Output as JSON")
}

func runHealth(cmd *cobra.Command, args []string) error {
	c := getClient()

	health, err := c.Health(cmd.Context())
	if err != nil {
		return fmt.Errorf("get health: %w", err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(health)
	}

	status := okStyle.Render(health.Status)
	if health.Status != "ok" {
		status = failStyle.Render(health.Status)
	}

	fmt.Printf("Server:      %s\n", c.BaseURL())
	fmt.Printf("Status:      %s\n", status)
	fmt.Printf("Version:     %s\n", health.Version)
	fmt.Printf("Platform:    %s\n", health.Platform)
	fmt.Printf("OCR mode:    %s\n", health.OCRMode)
	if health.OCRBackend != "" {
		fmt.Printf("OCR backend: %s\n", health.OCRBackend)
	}
	fmt.Printf("Languages:   %s\n", strings.Join(health.Languages, ", "))
	if health.Paths != nil {
		fmt.Printf("Tessdata:    %s\n", health.Paths.LanguageData)
		fmt.Printf("Binaries:    %s\n", health.Paths.EngineBinaries)
	}
	if len(health.MissingLanguages) > 0 {
		fmt.Printf("Missing:     %s\n", failStyle.Render(strings.Join(health.MissingLanguages, ", ")))
	}
	if health.Error != "" {
		fmt.Printf("Error:       %s\n", failStyle.Render(health.Error))
	}

	return nil
}
