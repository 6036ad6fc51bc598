package tle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/amsteele/satellite-conjunction-risk/internal/fsutil"
)

// LoadFile parses the TLE text file at path into a Catalog.
func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return parseCatalog(path, data, logger)
}

// Load obtains a catalog from source. An http(s) source is fetched and, when
// savePath is set, written there so the run can be reproduced offline; any
// other source is read as a local file.
func Load(ctx context.Context, source, savePath string, logger *slog.Logger, extraURLs ...string) (*Catalog, error) {
	if !IsURL(source) {
		return LoadFile(source, logger)
	}

	data, err := NewFetcher(source, logger, extraURLs...).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if savePath != "" {
		if err := SaveFile(savePath, data); err != nil {
			return nil, err
		}
		logger.Info("catalog saved", "path", savePath, "bytes", len(data))
	}
	return parseCatalog(source, data, logger)
}

func parseCatalog(source string, data []byte, logger *slog.Logger) (*Catalog, error) {
	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid TLE entries in %s", source)
	}

	c := NewCatalog(source, entries, time.Now().UTC())
	perigee, apogee := c.AltitudeRange()
	logger.Info("catalog loaded",
		"source", source,
		"objects", c.Len(),
		"epoch_min", c.EpochRange.Min,
		"epoch_max", c.EpochRange.Max,
		"perigee_min_km", perigee,
		"apogee_max_km", apogee,
	)
	return c, nil
}

// SaveFile atomically writes raw catalog text to path, replacing any
// previous copy.
func SaveFile(path string, data []byte) error {
	if err := fsutil.WriteFile(path, data); err != nil {
		return fmt.Errorf("writing catalog file: %w", err)
	}
	return nil
}

// IsURL reports whether a catalog source is fetched over HTTP.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Sample returns n entries drawn without replacement using seed, in their
// original catalog order. n <= 0 or n >= len(entries) returns all entries.
func Sample(entries []TLEEntry, n int, seed int64) []TLEEntry {
	if n <= 0 || n >= len(entries) {
		return entries
	}

	idx := rand.New(rand.NewSource(seed)).Perm(len(entries))[:n]
	sort.Ints(idx)

	out := make([]TLEEntry, n)
	for i, j := range idx {
		out[i] = entries[j]
	}
	return out
}
