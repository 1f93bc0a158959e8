package config

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/afero"
)

// LoadKeywords reads one keyword per line. Lines are trimmed and blank lines
// skipped; order and duplicates are kept.
func LoadKeywords(fsys afero.Fs, path string) ([]string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: keywords: %w", err)
	}
	defer f.Close()

	var keywords []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if k := strings.TrimSpace(sc.Text()); k != "" {
			keywords = append(keywords, k)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("config: keywords: %s: %w", path, err)
	}
	return keywords, nil
}
