// Package testutil holds golden-file helpers shared by scriptdeck tests.
//
// Goldens live in the calling package's testdata directory. Run the tests
// with -update to rewrite them from the current output.
package testutil

import (
	"cmp"
	"flag"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

var update = flag.Bool("update", false, "rewrite golden files from current output")

// GoldenPath returns the location of a golden file under testdata.
func GoldenPath(name string) string {
	return filepath.Join("testdata", name)
}

// AssertGolden fails tb when got differs from the named golden file. With
// -update it writes got instead.
func AssertGolden(tb testing.TB, got, name string) {
	tb.Helper()

	path := GoldenPath(name)

	if *update {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			tb.Fatalf("create %s: %v", filepath.Dir(path), err)
			return
		}

		if err := os.WriteFile(path, []byte(got), 0o644); err != nil { //nolint:gosec // test fixtures
			tb.Fatalf("write golden %s: %v", path, err)
			return
		}

		tb.Logf("updated %s", path)

		return
	}

	want, err := os.ReadFile(path) //nolint:gosec // test fixtures
	if err != nil {
		if os.IsNotExist(err) {
			tb.Fatalf("golden %s is missing; run the test with -update", path)
			return
		}

		tb.Fatalf("read golden %s: %v", path, err)

		return
	}

	if got != string(want) {
		tb.Errorf("%s mismatch\n\ngot:\n%s\nwant:\n%s\nrun with -update if the change is intended", path, got, want)
	}
}

// Mask replaces machine-specific values in s with stable placeholders, for
// example a t.TempDir root with "$ROOT". Longer values are replaced first so
// a nested path is never half-masked. Separators are normalized to "/".
func Mask(s string, placeholders map[string]string) string {
	values := make([]string, 0, len(placeholders))
	for v := range placeholders {
		if v != "" {
			values = append(values, v)
		}
	}

	slices.SortFunc(values, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})

	pairs := make([]string, 0, 2*len(values))
	for _, v := range values {
		pairs = append(pairs, v, placeholders[v])
	}

	return filepath.ToSlash(strings.NewReplacer(pairs...).Replace(s))
}
