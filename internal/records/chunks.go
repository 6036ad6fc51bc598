package records

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/amsteele/satellite-conjunction-risk/internal/conjunction"
)

// ChunkStore persists event chunks next to an events output path. For
// "out/events.csv" chunk 3 is "out/events.part3.csv" and the final chunk is
// "out/events.partFINAL.csv".
type ChunkStore struct {
	dir    string
	prefix string
	ext    string
	format Format
}

// NewChunkStore returns a store for chunks of eventsPath, using the record
// format implied by its extension.
func NewChunkStore(eventsPath string) (*ChunkStore, error) {
	f, err := FormatFor(eventsPath)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(eventsPath)
	base := strings.TrimSuffix(filepath.Base(eventsPath), ext)
	return &ChunkStore{
		dir:    filepath.Dir(eventsPath),
		prefix: base + ".part",
		ext:    ext,
		format: f,
	}, nil
}

// Path returns the file name used for chunk id.
func (s *ChunkStore) Path(id conjunction.ChunkID) string {
	return filepath.Join(s.dir, s.prefix+id.String()+s.ext)
}

// WriteChunk writes events as chunk id. Existing chunks are never
// overwritten.
func (s *ChunkStore) WriteChunk(ctx context.Context, id conjunction.ChunkID, events []conjunction.Event) error {
	path := s.Path(id)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("chunk %s already exists at %s", id, path)
	}
	return s.format.WriteEvents(ctx, path, events)
}

// ReadChunk reads the events of chunk id.
func (s *ChunkStore) ReadChunk(ctx context.Context, id conjunction.ChunkID) ([]conjunction.Event, error) {
	return s.format.ReadEvents(ctx, s.Path(id))
}

// ListChunks returns the chunks present on disk in pass order. Files whose
// label is neither a positive number nor FINAL are ignored.
func (s *ChunkStore) ListChunks(ctx context.Context) ([]conjunction.ChunkID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing chunk dir: %w", err)
	}

	var ids []conjunction.ChunkID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := s.parse(e.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

func (s *ChunkStore) parse(name string) (conjunction.ChunkID, bool) {
	if !strings.HasPrefix(name, s.prefix) || !strings.HasSuffix(name, s.ext) {
		return conjunction.ChunkID{}, false
	}
	label := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix), s.ext)
	if label == "FINAL" {
		return conjunction.ChunkID{Final: true}, true
	}
	seq, err := strconv.Atoi(label)
	if err != nil || seq < 1 || strconv.Itoa(seq) != label {
		return conjunction.ChunkID{}, false
	}
	return conjunction.ChunkID{Seq: seq}, true
}

// Remove deletes every chunk currently on disk and returns how many were
// removed.
func (s *ChunkStore) Remove(ctx context.Context) (int, error) {
	ids, err := s.ListChunks(ctx)
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for _, id := range ids {
		if err := os.Remove(s.Path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
