package ocr

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const modelSuffix = ".traineddata"

// LanguageModels lists the language codes installed in a tessdata directory.
func LanguageModels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read tessdata directory: %w", err)
	}

	langs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), modelSuffix) {
			continue
		}
		langs = append(langs, strings.TrimSuffix(entry.Name(), modelSuffix))
	}
	sort.Strings(langs)
	return langs, nil
}

// MissingLanguages returns the wanted languages that have no model in dir.
func MissingLanguages(dir string, wanted []string) []string {
	installed, err := LanguageModels(dir)
	if err != nil {
		return wanted
	}

	have := make(map[string]bool, len(installed))
	for _, l := range installed {
		have[l] = true
	}

	var missing []string
	for _, l := range wanted {
		if !have[l] {
			missing = append(missing, l)
		}
	}
	return missing
}
