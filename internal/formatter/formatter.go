// package formatter exports resolved playlists to portable file formats (JSON,
// extended M3U).
package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/muso-fm/muso/internal/catalog"
)

// exportVersion is written into JSON exports so later versions can migrate old
// files.
const exportVersion = "1.0"

// trackExport is the serialized form of one track.
type trackExport struct {
	Title      string `json:"title"`
	Author     string `json:"author"`
	URI        string `json:"uri"`
	Identifier string `json:"identifier"`
	Length     int    `json:"length"`
	IsStream   bool   `json:"is_stream"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	Playlist   string `json:"playlist_name,omitempty"`
}

// playlistExport is the serialized form of a resolved playlist.
type playlistExport struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	CreatedAt     string        `json:"created_at"`
	TrackCount    int           `json:"track_count"`
	TotalDuration int           `json:"total_duration"`
	Degraded      bool          `json:"degraded,omitempty"`
	Tracks        []trackExport `json:"tracks"`
	Version       string        `json:"version"`
}

// ExportToJSON serializes a resolved playlist, including per-track metadata and
// aggregate duration.
func ExportToJSON(playlist *catalog.Playlist, description string) ([]byte, error) {
	export := playlistExport{
		Name:        playlist.Name,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		TrackCount:  len(playlist.Tracks),
		Degraded:    playlist.Degraded(),
		Tracks:      make([]trackExport, 0, len(playlist.Tracks)),
		Version:     exportVersion,
	}

	for _, track := range playlist.Tracks {
		t := trackExport{
			Title:      track.Title,
			Author:     track.Author,
			URI:        track.URI,
			Identifier: track.Identifier,
			Length:     track.Length,
			IsStream:   track.IsStream,
			Thumbnail:  track.Thumbnail,
			ISRC:       track.ISRC,
		}
		if track.Playlist != nil {
			t.Playlist = track.Playlist.Name
		}
		export.TotalDuration += track.Length
		export.Tracks = append(export.Tracks, t)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal playlist: %w", err)
	}
	return data, nil
}

// ExportToM3U serializes a resolved playlist as an extended M3U file.
// EXTINF durations are whole seconds.
func ExportToM3U(playlist *catalog.Playlist) []byte {
	var buf bytes.Buffer

	buf.WriteString("#EXTM3U\n")
	if playlist.Name != "" {
		buf.WriteString(fmt.Sprintf("#PLAYLIST:%s\n", playlist.Name))
	}

	for _, track := range playlist.Tracks {
		buf.WriteString(fmt.Sprintf("#EXTINF:%d,%s - %s\n", track.Length/1000, track.Author, track.Title))
		buf.WriteString(track.URI + "\n")
	}

	return buf.Bytes()
}

// WriteExport writes a playlist to path in the given format ("json" or "m3u"),
// creating parent directories as needed.
func WriteExport(playlist *catalog.Playlist, format, path string) error {
	var data []byte
	var err error

	switch format {
	case "m3u":
		data = ExportToM3U(playlist)
	case "json", "":
		if data, err = ExportToJSON(playlist, ""); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	return nil
}

// ImportFromJSON reads back a playlist previously written by ExportToJSON.
func ImportFromJSON(data []byte) (*catalog.Playlist, error) {
	var export playlistExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("failed to parse playlist file: %w", err)
	}

	playlist := &catalog.Playlist{
		Name:   export.Name,
		Total:  export.TrackCount,
		Tracks: make([]*catalog.Track, 0, len(export.Tracks)),
	}
	for _, t := range export.Tracks {
		playlist.Tracks = append(playlist.Tracks, &catalog.Track{
			Title:      t.Title,
			Author:     t.Author,
			URI:        t.URI,
			Identifier: t.Identifier,
			Length:     t.Length,
			IsStream:   t.IsStream,
			Thumbnail:  t.Thumbnail,
			ISRC:       t.ISRC,
			Playlist:   playlist,
		})
	}

	return playlist, nil
}
