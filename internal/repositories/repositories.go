// package repositories provides the persistence layer for the resolved-track
// cache. Every successfully resolved track can be recorded, keyed by provider
// plus provider identifier, to enable offline lookups and ISRC matching.
package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/muso-fm/muso/internal/catalog"
	"github.com/muso-fm/muso/internal/shared"
)

// CachedTrack is a resolved track as stored in the cache.
type CachedTrack struct {
	ID         string
	Provider   string
	ProviderID string
	Track      catalog.Track
	CreatedAt  time.Time
}

// TrackRepository handles reads and writes of the tracks table.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a TrackRepository on the given database connection.
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a resolved track with a generated row ID.
func (r *TrackRepository) Create(provider string, track *catalog.Track) error {
	if provider == "" || track.Identifier == "" {
		return fmt.Errorf("%w: provider and track identifier are required", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO tracks (id, provider, provider_id, title, author, uri, duration_ms, isrc, thumbnail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		shared.GenerateID(),
		provider,
		track.Identifier,
		track.Title,
		track.Author,
		track.URI,
		track.Length,
		track.ISRC,
		track.Thumbnail,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}

	return nil
}

// GetByProviderID retrieves a cached track by provider and provider identifier.
// Returns sql.ErrNoRows via the wrapped error when no row matches.
func (r *TrackRepository) GetByProviderID(provider, providerID string) (*CachedTrack, error) {
	query := `
		SELECT id, provider, provider_id, title, author, uri, duration_ms, isrc, thumbnail, created_at
		FROM tracks
		WHERE provider = ? AND provider_id = ?
	`
	return r.scanOne(r.db.QueryRow(query, provider, providerID))
}

// GetByISRC retrieves any cached track carrying the given ISRC, regardless of
// provider. Useful for matching the same recording across providers.
func (r *TrackRepository) GetByISRC(isrc string) (*CachedTrack, error) {
	query := `
		SELECT id, provider, provider_id, title, author, uri, duration_ms, isrc, thumbnail, created_at
		FROM tracks
		WHERE isrc = ? AND isrc != ''
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, isrc))
}

// List returns cached tracks for a provider, most recent first.
func (r *TrackRepository) List(provider string, limit int) ([]*CachedTrack, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, provider, provider_id, title, author, uri, duration_ms, isrc, thumbnail, created_at
		FROM tracks
		WHERE provider = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, provider, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*CachedTrack
	for rows.Next() {
		track, err := scanTrack(rows.Scan)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}

	return tracks, rows.Err()
}

// Count returns the number of cached tracks across all providers.
func (r *TrackRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

func (r *TrackRepository) scanOne(row *sql.Row) (*CachedTrack, error) {
	return scanTrack(row.Scan)
}

func scanTrack(scan func(dest ...any) error) (*CachedTrack, error) {
	var cached CachedTrack
	err := scan(
		&cached.ID,
		&cached.Provider,
		&cached.ProviderID,
		&cached.Track.Title,
		&cached.Track.Author,
		&cached.Track.URI,
		&cached.Track.Length,
		&cached.Track.ISRC,
		&cached.Track.Thumbnail,
		&cached.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	cached.Track.Identifier = cached.ProviderID
	return &cached, nil
}

// TrackCache wraps a TrackRepository with dedup semantics: caching a track that
// already exists is a no-op rather than an error.
type TrackCache struct {
	repo *TrackRepository
}

// NewTrackCache creates a TrackCache over the given repository.
func NewTrackCache(repo *TrackRepository) *TrackCache {
	return &TrackCache{repo: repo}
}

// CacheTracks records resolved tracks, ignoring duplicates.
func (c *TrackCache) CacheTracks(provider string, tracks []*catalog.Track) error {
	for _, track := range tracks {
		if track.Identifier == "" {
			continue
		}
		if err := c.repo.Create(provider, track); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				continue
			}
			return fmt.Errorf("failed to cache track %s: %w", track.Identifier, err)
		}
	}
	return nil
}
