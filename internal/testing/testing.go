// package testing contains shared testing utilities
package testing

import (
	"context"
	"net/http"
	"os"
	"testing"

	"github.com/muso-fm/muso/internal/catalog"
)

// MockResolver is a test double for [catalog.Resolver]
type MockResolver struct {
	NameValue    string
	MatchesValue bool
	Entity       catalog.Entity
	Err          error
	Batches      [][]*catalog.Track
}

func (m *MockResolver) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *MockResolver) Matches(rawURL string) bool { return m.MatchesValue }

func (m *MockResolver) Resolve(ctx context.Context, rawURL string) (catalog.Entity, error) {
	return m.Entity, m.Err
}

func (m *MockResolver) StreamPlaylist(ctx context.Context, rawURL string) (<-chan []*catalog.Track, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(chan []*catalog.Track)
	go func() {
		defer close(out)
		for _, batch := range m.Batches {
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}
