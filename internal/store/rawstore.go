package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

// RawStore writes each fetch call's raw payload to disk, keyed by
// (source, city, date range), so any run can be audited or replayed
// without re-calling the sources.
type RawStore struct {
	dir string
}

// NewRawStore creates a raw store rooted at dir, creating it if needed.
func NewRawStore(dir string) (*RawStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw data dir: %w", err)
	}
	return &RawStore{dir: dir}, nil
}

// Save writes one payload, overwriting any previous payload for the same
// key so a re-run converges on the same files.
func (s *RawStore) Save(source domain.Source, city string, rng domain.DateRange, payload []byte) error {
	path := filepath.Join(s.dir, fileName(source, city, rng))
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write raw payload: %w", err)
	}
	return nil
}

// Load reads a previously saved payload.
func (s *RawStore) Load(source domain.Source, city string, rng domain.DateRange) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, fileName(source, city, rng)))
	if err != nil {
		return nil, fmt.Errorf("read raw payload: %w", err)
	}
	return data, nil
}

func fileName(source domain.Source, city string, rng domain.DateRange) string {
	slug := strings.ReplaceAll(strings.ToLower(city), " ", "-")
	return fmt.Sprintf("%s_%s_%s_%s.json",
		source, slug, rng.Start.Format(dayLayout), rng.End.Format(dayLayout))
}
