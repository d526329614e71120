package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"flotta/internal/core"
	"flotta/internal/report"
	ports "flotta/internal/sheets"
)

// SeedPlatesFile lists one plate per line; blank lines and # comments are skipped.
const SeedPlatesFile = "seed_plates.txt"

// Store keeps usage records in process memory. Plates offered to users are
// the seeded plates plus every plate recorded since.
type Store struct {
	mu      sync.Mutex
	plates  []string
	records []core.VehicleUsageRecord
}

var _ ports.Store = (*Store)(nil)

func New(plates []string) *Store {
	return &Store{plates: dedupeSorted(plates)}
}

// NewFromFiles seeds plates from base/seed_plates.txt, falling back to a
// small demo fleet when the file is missing or empty.
func NewFromFiles(base string) *Store {
	plates := LoadSeedPlates(base)
	if len(plates) == 0 {
		plates = []string{"AB123CD", "EF456GH", "XY999ZZ"}
	}
	return New(plates)
}

// LoadSeedPlates reads base/seed_plates.txt, returning nil when it is missing.
func LoadSeedPlates(base string) []string {
	return dedupeSorted(readLines(filepath.Join(base, SeedPlatesFile)))
}

// AppendRecord stores the record and returns a synthetic row reference.
func (s *Store) AppendRecord(_ context.Context, rec core.VehicleUsageRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrValidation, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	// Row 1 is the header.
	return fmt.Sprintf("mem:%d", len(s.records)+1), nil
}

// FetchAllRecords returns the stored records in the raw store shape.
func (s *Store) FetchAllRecords(_ context.Context) (core.RawTable, error) {
	s.mu.Lock()
	records := append([]core.VehicleUsageRecord(nil), s.records...)
	s.mu.Unlock()
	return report.ToRawTable(records), nil
}

func (s *Store) FetchDistinctPlates(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := append([]string(nil), s.plates...)
	for _, r := range s.records {
		all = append(all, r.Plate)
	}
	return dedupeSorted(all), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func dedupeSorted(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = core.NormalizePlate(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
