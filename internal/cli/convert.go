package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Wojt3kW/ocrpdf/internal/client"
	"github.com/Wojt3kW/ocrpdf/internal/tui"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var textLayerCmd = &cobra.Command{
	Use:   "text-layer FILE",
	Short: "Add a text layer to a PDF",
	Long:  "Upload a PDF and save a copy with a searchable text layer. Documents that already have text on the first page come back unchanged.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args[0], "Add text layer", getClient().AddTextLayer)
	},
}

var imageCmd = &cobra.Command{
	Use:   "image FILE",
	Short: "Convert an image to a searchable PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd, args[0], "Image to PDF", getClient().ImageToPDF)
	},
}

func init() {
	for _, c := range []*cobra.Command{textLayerCmd, imageCmd} {
		c.Flags().StringP("output", "o", "", "Output file or directory (default: from config, else next to the input)")
		c.Flags().String("content-type", "", "Content type sent to the server (default: detected)")
		c.Flags().BoolP("force", "f", false, "Overwrite an existing output file")
	}
}

type uploadCall func(ctx context.Context, path, contentType string) (*client.Document, error)

func runConvert(cmd *cobra.Command, input, title string, call uploadCall) error {
	if _, err := os.Stat(input); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	output, _ := cmd.Flags().GetString("output")
	contentType, _ := cmd.Flags().GetString("content-type")
	force, _ := cmd.Flags().GetBool("force")
	overwrite := force || cfg.Output.Overwrite

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	upload := func(ctx context.Context) (*client.Document, error) {
		return call(ctx, input, contentType)
	}

	var (
		doc *client.Document
		err error
	)
	if useTUI || cfg.TUI.Enabled {
		doc, err = tui.RunUpload(ctx, title, filepath.Base(input), upload)
	} else {
		fmt.Println(dimStyle.Render(fmt.Sprintf("Uploading %s...", input)))
		doc, err = upload(ctx)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println(failStyle.Render("Cancelled"))
			return nil
		}
		return err
	}

	dest, err := outputPath(output, cfg.Output.Directory, input, doc.Filename)
	if err != nil {
		return err
	}
	if err := writeOutput(dest, doc.Data, overwrite); err != nil {
		return err
	}

	fmt.Println(okStyle.Render("Saved " + dest))
	return nil
}

// outputPath picks the destination for a returned document. An explicit
// output that names an existing directory, or ends in a separator, receives
// the server's filename. Otherwise it is used as the file path.
func outputPath(output, configDir, input, filename string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "document.pdf"
	}

	if output != "" {
		if isDirTarget(output) {
			return filepath.Join(output, name), nil
		}
		return output, nil
	}

	dir := configDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name), nil
}

func isDirTarget(p string) bool {
	if os.IsPathSeparator(p[len(p)-1]) {
		return true
	}
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func writeOutput(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
