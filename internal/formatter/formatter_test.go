package formatter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muso-fm/muso/internal/catalog"
)

func testPlaylist() *catalog.Playlist {
	p := &catalog.Playlist{
		Identifier: "pl1",
		Name:       "Test Playlist",
		Owner:      "tester",
		URI:        "https://open.spotify.com/playlist/pl1",
		Total:      2,
		Tracks: []*catalog.Track{
			{Identifier: "t1", Title: "First Song", Author: "Artist A", URI: "https://open.spotify.com/track/t1", Length: 180000, ISRC: "USUM70000001"},
			{Identifier: "t2", Title: "Second Song", Author: "Artist B", URI: "https://open.spotify.com/track/t2", Length: 240000},
		},
	}
	for _, track := range p.Tracks {
		track.Playlist = p
	}
	return p
}

func TestExportToJSON(t *testing.T) {
	data, err := ExportToJSON(testPlaylist(), "a test export")
	if err != nil {
		t.Fatalf("ExportToJSON() error: %v", err)
	}

	var export map[string]any
	if err := json.Unmarshal(data, &export); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}

	if export["name"] != "Test Playlist" {
		t.Errorf("expected name 'Test Playlist', got %v", export["name"])
	}
	if export["description"] != "a test export" {
		t.Errorf("expected description to be set, got %v", export["description"])
	}
	if export["track_count"] != float64(2) {
		t.Errorf("expected track_count 2, got %v", export["track_count"])
	}
	if export["total_duration"] != float64(420000) {
		t.Errorf("expected total_duration 420000, got %v", export["total_duration"])
	}
	if export["version"] != "1.0" {
		t.Errorf("expected version 1.0, got %v", export["version"])
	}
	if _, degraded := export["degraded"]; degraded {
		t.Error("expected degraded to be omitted for a complete playlist")
	}

	tracks, ok := export["tracks"].([]any)
	if !ok || len(tracks) != 2 {
		t.Fatalf("expected 2 exported tracks, got %v", export["tracks"])
	}
	first := tracks[0].(map[string]any)
	if first["playlist_name"] != "Test Playlist" {
		t.Errorf("expected tracks to record their playlist, got %v", first["playlist_name"])
	}
}

func TestExportToM3U(t *testing.T) {
	out := string(ExportToM3U(testPlaylist()))

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"#EXTM3U",
		"#PLAYLIST:Test Playlist",
		"#EXTINF:180,Artist A - First Song",
		"https://open.spotify.com/track/t1",
		"#EXTINF:240,Artist B - Second Song",
		"https://open.spotify.com/track/t2",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d:\n%s", len(want), len(lines), out)
	}
	for i, line := range want {
		if lines[i] != line {
			t.Errorf("line %d = %q, want %q", i, lines[i], line)
		}
	}
}

func TestWriteExport(t *testing.T) {
	t.Run("JSON To A Nested Path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "exports", "playlist.json")
		if err := WriteExport(testPlaylist(), "json", path); err != nil {
			t.Fatalf("WriteExport() error: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		var export map[string]any
		if err := json.Unmarshal(data, &export); err != nil {
			t.Errorf("written export is not valid JSON: %v", err)
		}
	})

	t.Run("M3U", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlist.m3u")
		if err := WriteExport(testPlaylist(), "m3u", path); err != nil {
			t.Fatalf("WriteExport() error: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read export: %v", err)
		}
		if !strings.HasPrefix(string(data), "#EXTM3U") {
			t.Error("expected an extended M3U header")
		}
	})

	t.Run("Unsupported Format", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "playlist.xml")
		if err := WriteExport(testPlaylist(), "xml", path); err == nil {
			t.Error("expected an error for an unsupported format")
		}
	})
}

func TestImportFromJSON(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		original := testPlaylist()
		data, err := ExportToJSON(original, "")
		if err != nil {
			t.Fatalf("ExportToJSON() error: %v", err)
		}

		playlist, err := ImportFromJSON(data)
		if err != nil {
			t.Fatalf("ImportFromJSON() error: %v", err)
		}
		if playlist.Name != original.Name {
			t.Errorf("name = %q, want %q", playlist.Name, original.Name)
		}
		if len(playlist.Tracks) != len(original.Tracks) {
			t.Fatalf("expected %d tracks, got %d", len(original.Tracks), len(playlist.Tracks))
		}
		for i, track := range playlist.Tracks {
			if track.Identifier != original.Tracks[i].Identifier {
				t.Errorf("track %d = %s, want %s", i, track.Identifier, original.Tracks[i].Identifier)
			}
			if track.Playlist != playlist {
				t.Error("expected imported tracks to link back to the playlist")
			}
		}
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		if _, err := ImportFromJSON([]byte("not json")); err == nil {
			t.Error("expected an error for malformed input")
		}
	})
}
