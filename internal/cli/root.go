// Package cli implements the ocrpdf command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Wojt3kW/ocrpdf/internal/client"
	"github.com/Wojt3kW/ocrpdf/internal/clientconfig"
)

// Version is printed by the version command.
var Version = "dev"

var (
	cfgFile   string
	serverURL string
	apiKey    string
	useTUI    bool
	cfg       *clientconfig.Config
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "ocrpdf",
	Short: "ocrpdf - searchable PDF client",
	Long:  "Command line client that sends PDFs and images to an ocrpdf server and saves the searchable PDFs it returns.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = clientconfig.LoadFrom(cfgFile)
		} else {
			cfg, err = clientconfig.Load()
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		url, key := cfg.Server.URL, cfg.Server.APIKey
		if serverURL != "" {
			url = serverURL
		}
		if apiKey != "" {
			key = apiKey
		}
		apiClient = client.New(url, key, cfg.Server.Timeout.Duration())
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "tui", false, "show interactive progress while waiting")

	rootCmd.AddCommand(textLayerCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getClient() *client.Client {
	return apiClient
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ocrpdf client %s\n", Version)
	},
}
