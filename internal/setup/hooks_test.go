package setup

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func readSettings(t *testing.T, repoRoot string) map[string]json.RawMessage {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(repoRoot, ".claude", "settings.json"))
	if err != nil {
		t.Fatalf("read settings.json: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal settings.json: %v", err)
	}
	return raw
}

func TestInstallHooks_CreatesAllSixEvents(t *testing.T) {
	root := t.TempDir()
	if err := InstallHooks(root); err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}

	raw := readSettings(t, root)
	var hooks map[string][]hookEntry
	if err := json.Unmarshal(raw["hooks"], &hooks); err != nil {
		t.Fatalf("unmarshal hooks: %v", err)
	}
	for _, event := range hookEventOrder {
		entries, ok := hooks[event]
		if !ok || len(entries) != 1 {
			t.Fatalf("expected exactly one hook entry for %s, got %v", event, entries)
		}
	}
}

func TestInstallHooks_PreservesUnrelatedKeys(t *testing.T) {
	root := t.TempDir()
	settingsPath := filepath.Join(root, ".claude", "settings.json")
	if err := os.MkdirAll(filepath.Dir(settingsPath), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	existing := `{"theme":"dark","hooks":{"SomeOtherEvent":[{"matcher":"","hooks":[{"type":"command","command":"other-tool run"}]}]}}`
	if err := os.WriteFile(settingsPath, []byte(existing), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := InstallHooks(root); err != nil {
		t.Fatalf("InstallHooks: %v", err)
	}

	raw := readSettings(t, root)
	var theme string
	if err := json.Unmarshal(raw["theme"], &theme); err != nil {
		t.Fatalf("unmarshal theme: %v", err)
	}
	if theme != "dark" {
		t.Fatalf("expected unrelated top-level key to survive, got %q", theme)
	}

	var hooks map[string][]hookEntry
	if err := json.Unmarshal(raw["hooks"], &hooks); err != nil {
		t.Fatalf("unmarshal hooks: %v", err)
	}
	if _, ok := hooks["SomeOtherEvent"]; !ok {
		t.Fatal("expected a hook entry for an event gitmem doesn't own to survive")
	}
}

func TestInstallHooks_IsIdempotent(t *testing.T) {
	root := t.TempDir()
	if err := InstallHooks(root); err != nil {
		t.Fatalf("InstallHooks (1st): %v", err)
	}
	first := readSettings(t, root)

	if err := InstallHooks(root); err != nil {
		t.Fatalf("InstallHooks (2nd): %v", err)
	}
	second := readSettings(t, root)

	if string(first["hooks"]) != string(second["hooks"]) {
		t.Fatalf("expected a deterministic hooks block across runs:\n%s\nvs\n%s", first["hooks"], second["hooks"])
	}
}
