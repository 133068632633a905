package main

import (
	"encoding/json"
	"testing"

	"github.com/musher-dev/scriptdeck/internal/testutil"
)

func TestPaths_Defaults_Golden(t *testing.T) {
	env := isolateEnv(t)
	t.Setenv("SCRIPTDECK_DATABASE_PATH", "")
	t.Setenv("SCRIPTDECK_HISTORY_DIR", "")

	got, err := execute(t, newPathsCmd())
	if err != nil {
		t.Fatalf("paths error = %v", err)
	}

	testutil.AssertGolden(t, testutil.Mask(got, map[string]string{env.root: "$ROOT"}), "paths_defaults.golden")
}

func TestPaths_JSON_HonoursOverrides(t *testing.T) {
	env := isolateEnv(t)

	out, buf := testWriter()
	out.JSON = true

	if _, err := executeWith(t, out, buf, newPathsCmd()); err != nil {
		t.Fatalf("paths --json error = %v", err)
	}

	var info PathsInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("paths --json: %v\n%s", err, buf.String())
	}

	if info.Database != env.database || info.JournalDir != env.journalDir {
		t.Fatalf("paths = %+v, want database %s and journal %s", info, env.database, env.journalDir)
	}
}
