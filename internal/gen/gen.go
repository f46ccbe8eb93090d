// Package gen produces randomized item lists for load and smoke testing.
package gen

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strings"
)

const (
	alphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	itemLength = 10
)

// Items returns count unique random alphabetic strings.
func Items(rng *rand.Rand, count int) []string {
	if count <= 0 {
		return nil
	}
	seen := make(map[string]struct{}, count)
	items := make([]string, 0, count)
	for len(items) < count {
		item := randomItem(rng)
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		items = append(items, item)
	}
	return items
}

// WriteFile generates count unique items and writes them newline-delimited
// to path, overwriting any existing file.
func WriteFile(rng *rand.Rand, path string, count int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, item := range Items(rng, count) {
		if _, err := fmt.Fprintln(w, item); err != nil {
			f.Close() //nolint:errcheck // write error takes precedence
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close() //nolint:errcheck // flush error takes precedence
		return fmt.Errorf("flush %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func randomItem(rng *rand.Rand) string {
	var b strings.Builder
	b.Grow(itemLength)
	for i := 0; i < itemLength; i++ {
		b.WriteByte(alphabet[rng.Intn(len(alphabet))])
	}
	return b.String()
}
