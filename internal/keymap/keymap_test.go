package keymap

import (
	"sort"
	"testing"

	"go2tv.app/uniremote/internal/domain"
)

func mappedValues(t *testing.T, backend domain.Backend) []string {
	t.Helper()
	seen := map[string]domain.Command{}
	for _, cmd := range domain.AllCommands {
		key, ok := Lookup(cmd, backend)
		if !ok {
			continue
		}
		if prev, dup := seen[key]; dup {
			t.Fatalf("%s key %q mapped from both %s and %s", backend, key, prev, cmd)
		}
		seen[key] = cmd
	}
	out := make([]string, 0, len(seen))
	for key := range seen {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func assertSameSet(t *testing.T, got, want []string) {
	t.Helper()
	want = append([]string(nil), want...)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("got %d keys %v, want %d keys %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("key set mismatch: got %v, want %v", got, want)
		}
	}
}

func TestRokuTableMatchesECPVocabulary(t *testing.T) {
	assertSameSet(t, mappedValues(t, domain.BackendRoku), []string{
		"Home", "Back", "Up", "Down", "Left", "Right", "Select",
		"Play", "Pause", "VolumeUp", "VolumeDown", "PowerOff",
	})
}

func TestFireTVTableMatchesKeyEventVocabulary(t *testing.T) {
	assertSameSet(t, mappedValues(t, domain.BackendFireTV), []string{
		"HOME", "BACK", "UP", "DOWN", "LEFT", "RIGHT", "CENTER",
		"PLAY", "PAUSE", "VOLUME_UP", "VOLUME_DOWN", "POWER",
	})
}

func TestEveryRokuValueIsInVocabulary(t *testing.T) {
	for _, cmd := range domain.AllCommands {
		key, ok := Lookup(cmd, domain.BackendRoku)
		if !ok {
			continue
		}
		if !IsRokuKey(key) {
			t.Fatalf("%s maps to %q which is outside the ECP vocabulary", cmd, key)
		}
	}
	if !IsRokuKey(RokuPowerOn) || !IsRokuKey(RokuVolumeMute) {
		t.Fatal("raw-only keys must stay in the vocabulary")
	}
	if IsRokuKey("select") {
		t.Fatal("ECP keys are case-sensitive")
	}
}

func TestUnknownBackendHasNoEntries(t *testing.T) {
	if _, ok := Lookup(domain.CommandHome, domain.Backend("adb")); ok {
		t.Fatal("expected no mapping for unknown backend")
	}
}

func TestFireTVAdapterOnlyForwardsMedia(t *testing.T) {
	for _, cmd := range domain.AllCommands {
		want := cmd == domain.CommandPlay || cmd == domain.CommandPause
		if got := FireTVAdapterSupports(cmd); got != want {
			t.Fatalf("FireTVAdapterSupports(%s) = %v, want %v", cmd, got, want)
		}
	}
}
