package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/posecast/internal/pose"
	"github.com/danmuck/posecast/internal/testutil/testlog"
)

const combatCatalog = `
fallback_namespaces = ["alt", "core"]
generic_fallbacks = ["core:idle"]

[[pose]]
id = "alt:sword_to_left"
length = 30

  [[pose.keyframe]]
  tick = 20
  bone = "arm_r"
  rotation = [0.0, 90.0, 0.0]

  [[pose.keyframe]]
  tick = 0
  bone = "arm_r"
  rotation = [0.0, 0.0, 0.0]

[[pose]]
id = "idle"
name = "Idle"
length = 60
loop = true
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadCatalogFile(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, t.TempDir(), "combat.toml", combatCatalog)

	loaded, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Catalog.Len() != 2 {
		t.Fatalf("catalog size got=%d want=2", loaded.Catalog.Len())
	}
	ns := loaded.Catalog.FallbackNamespaces()
	if len(ns) != 2 || ns[0] != "alt" || ns[1] != "core" {
		t.Fatalf("fallback namespaces got=%v", ns)
	}
	if len(loaded.GenericFallbacks) != 1 || loaded.GenericFallbacks[0] != pose.MustIdentifier("core:idle") {
		t.Fatalf("generic fallbacks got=%v", loaded.GenericFallbacks)
	}

	def, matched, ok := loaded.Catalog.Lookup(pose.MustIdentifier("ns:sword_to_left"))
	if !ok || matched != pose.MustIdentifier("alt:sword_to_left") {
		t.Fatalf("alias lookup failed ok=%v matched=%s", ok, matched)
	}
	if def.Name != "sword_to_left" || len(def.Keyframes) != 2 || def.Keyframes[0].Tick != 0 {
		t.Fatalf("definition not normalized: %+v", def)
	}
	if def.Keyframes[1].Rotation[1] != 90 {
		t.Fatalf("rotation not parsed: %+v", def.Keyframes[1])
	}
	idle, ok := loaded.Catalog.Get(pose.MustIdentifier("core:idle"))
	if !ok || !idle.Loop || idle.Name != "Idle" {
		t.Fatalf("idle entry got ok=%v def=%+v", ok, idle)
	}
}

func TestLoadCatalogDirectoryMergesFiles(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.toml", "fallback_namespaces = [\"alt\"]\n[[pose]]\nid = \"core:wave\"\nlength = 10\n")
	writeFile(t, dir, "b.toml", "fallback_namespaces = [\"alt\"]\n[[pose]]\nid = \"core:wave\"\nlength = 20\n")
	writeFile(t, dir, "notes.txt", "ignored")

	loaded, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wave, ok := loaded.Catalog.Get(pose.MustIdentifier("core:wave"))
	if !ok || wave.Length != 20 {
		t.Fatalf("later file should win, got ok=%v def=%+v", ok, wave)
	}
	if ns := loaded.Catalog.FallbackNamespaces(); len(ns) != 1 {
		t.Fatalf("fallback namespaces should dedupe, got=%v", ns)
	}
}

func TestBuildCatalogRejectsBadEntries(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		file CatalogFile
		want string
	}{
		{"missing id", CatalogFile{Poses: []PoseEntry{{Length: 1}}}, "pose[0]"},
		{"zero length", CatalogFile{Poses: []PoseEntry{{ID: "core:x"}}}, "length is required"},
		{"keyframe past end", CatalogFile{Poses: []PoseEntry{{ID: "core:x", Length: 5, Keyframes: []pose.Keyframe{{Tick: 6}}}}}, "beyond length"},
		{"bad generic", CatalogFile{GenericFallbacks: []string{"ns:"}}, "generic_fallbacks[0]"},
	}
	for _, tc := range cases {
		_, err := BuildCatalog(tc.file)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: got %v want substring %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadCatalogMissingPath(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
