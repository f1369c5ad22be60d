// Package hostindex maps the keys of a summary file to the byte offsets of
// their lines through a minimal perfect hash, so one host can be read back
// without scanning the file.
//
// An index file is laid out as
//
//	header (32 bytes): magic, version, count, summary size, reserved
//	u64 length + bbhash blob
//	count x (fingerprint u64, offset u64), in hash order
package hostindex

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/relab/bbhash"

	"github.com/eunmann/cdxsum/internal/logctx"
	"github.com/eunmann/cdxsum/pkg/fileutil"
	"github.com/eunmann/cdxsum/pkg/logging"
	"github.com/eunmann/cdxsum/pkg/summary"
)

const (
	// Magic identifies host index files ("CDXI").
	Magic uint32 = 0x43445849
	// Version is the current index format version.
	Version uint32 = 1

	headerSize = 4 + 4 + 8 + 8 + 8
	slotSize   = 16
)

var (
	// ErrNotFound is returned when a key is not in the index.
	ErrNotFound = errors.New("key not found in index")
	// ErrInvalidIndex indicates a truncated or foreign index file.
	ErrInvalidIndex = errors.New("invalid host index")
	// ErrStale indicates the summary file changed after the index was built.
	ErrStale = errors.New("host index does not match summary file")
)

// DefaultPath returns the index path used for a summary file.
func DefaultPath(summaryPath string) string {
	return summaryPath + ".idx"
}

// BuildStats describes a finished build.
type BuildStats struct {
	Keys       int
	Duplicates int
	Malformed  int
	IndexBytes int64
}

type keyOffset struct {
	key    string
	offset uint64
}

// Build scans the summary file at summaryPath and writes its index to
// indexPath. Only the first line of a repeated key is indexed.
func Build(ctx context.Context, summaryPath, indexPath string) (*BuildStats, error) {
	start := time.Now()
	log := logctx.FromContext(ctx)

	entries, size, stats, err := scan(ctx, summaryPath)
	if err != nil {
		return nil, err
	}

	hashes := make([]uint64, len(entries))
	for i, e := range entries {
		hashes[i] = hashKey(e.key)
	}

	var blob []byte
	slots := make([]byte, len(entries)*slotSize)
	if len(entries) > 0 {
		mph, err := bbhash.New(hashes, bbhash.Gamma(2.0))
		if err != nil {
			return nil, fmt.Errorf("build MPHF: %w", err)
		}
		if blob, err = mph.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("marshal MPHF: %w", err)
		}
		// bbhash positions are 1-indexed.
		for i, e := range entries {
			hv := mph.Find(hashes[i])
			if hv == 0 || hv > uint64(len(entries)) {
				return nil, fmt.Errorf("MPHF lookup failed for %q", e.key)
			}
			slot := slots[(hv-1)*slotSize:]
			binary.LittleEndian.PutUint64(slot[0:8], fingerprint(e.key))
			binary.LittleEndian.PutUint64(slot[8:16], e.offset)
		}
	}

	header := make([]byte, headerSize+8)
	binary.LittleEndian.PutUint32(header[0:4], Magic)
	binary.LittleEndian.PutUint32(header[4:8], Version)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(entries)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(size))
	binary.LittleEndian.PutUint64(header[32:40], uint64(len(blob)))

	err = fileutil.WriteAtomic(indexPath, func(w io.Writer) error {
		for _, part := range [][]byte{header, blob, slots} {
			if _, err := w.Write(part); err != nil {
				return fmt.Errorf("write index: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.Keys = len(entries)
	stats.IndexBytes = int64(len(header) + len(blob) + len(slots))
	logging.FileCreated(log, "index", time.Since(start)).
		Str("path", indexPath).
		Count("keys", int64(stats.Keys)).
		Int("duplicates", stats.Duplicates).
		Int("malformed", stats.Malformed).
		Bytes("index_bytes", stats.IndexBytes).
		Log("host index built")
	return stats, nil
}

func scan(ctx context.Context, summaryPath string) ([]keyOffset, int64, *BuildStats, error) {
	log := logctx.FromContext(logctx.WithStream(ctx, summaryPath))
	f, err := os.Open(summaryPath)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open summary: %w", err)
	}
	defer f.Close()

	stats := &BuildStats{}
	seen := make(map[uint64]string)
	var entries []keyOffset
	br := bufio.NewReaderSize(f, 256*1024)
	var offset uint64
	for lineNo := 1; ; lineNo++ {
		if lineNo%(1<<16) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, nil, err
			}
		}
		line, err := br.ReadString('\n')
		if line == "" && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, nil, fmt.Errorf("read summary: %w", err)
		}
		start := offset
		offset += uint64(len(line))

		key, rest, ok := strings.Cut(strings.TrimRight(line, "\r\n"), " ")
		if !ok || key == "" || !strings.HasPrefix(rest, "{") {
			if strings.TrimSpace(line) != "" {
				stats.Malformed++
				log.Warn().Int("line", lineNo).Msg("malformed summary line not indexed")
			}
			continue
		}

		h := hashKey(key)
		if prev, dup := seen[h]; dup {
			if prev != key {
				return nil, 0, nil, fmt.Errorf("hash collision between %q and %q", prev, key)
			}
			stats.Duplicates++
			continue
		}
		seen[h] = key
		entries = append(entries, keyOffset{key: key, offset: start})
	}
	if stats.Duplicates > 0 {
		log.Warn().Int("duplicates", stats.Duplicates).Msg("summary repeats keys; only the first line of each is indexed")
	}
	return entries, int64(offset), stats, nil
}

// Index answers key lookups against one summary file.
type Index struct {
	mph     *bbhash.BBHash2
	slots   []byte
	count   uint64
	summary *os.File
}

// Open loads the index at indexPath and opens the summary it was built
// from. The summary must be unchanged since the build.
func Open(summaryPath, indexPath string) (*Index, error) {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	if len(data) < headerSize+8 {
		return nil, ErrInvalidIndex
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, fmt.Errorf("%w: magic mismatch", ErrInvalidIndex)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidIndex, v)
	}
	count := binary.LittleEndian.Uint64(data[8:16])
	size := int64(binary.LittleEndian.Uint64(data[16:24]))
	blobLen := binary.LittleEndian.Uint64(data[32:40])

	rest := data[headerSize+8:]
	if uint64(len(rest)) != blobLen+count*slotSize {
		return nil, fmt.Errorf("%w: size mismatch", ErrInvalidIndex)
	}

	idx := &Index{count: count, slots: rest[blobLen:]}
	if count > 0 {
		idx.mph = &bbhash.BBHash2{}
		if err := idx.mph.UnmarshalBinary(rest[:blobLen]); err != nil {
			return nil, fmt.Errorf("unmarshal MPHF: %w", err)
		}
	}

	f, err := os.Open(summaryPath)
	if err != nil {
		return nil, fmt.Errorf("open summary: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat summary: %w", err)
	}
	if info.Size() != size {
		f.Close()
		return nil, fmt.Errorf("%w: summary is %d bytes, index expects %d", ErrStale, info.Size(), size)
	}
	idx.summary = f
	return idx, nil
}

// Close releases the summary file.
func (x *Index) Close() error {
	return x.summary.Close()
}

// Count returns the number of indexed keys.
func (x *Index) Count() uint64 {
	return x.count
}

// Offset returns the byte offset of key's line in the summary.
func (x *Index) Offset(key string) (uint64, error) {
	if x.count == 0 {
		return 0, ErrNotFound
	}
	hv := x.mph.Find(hashKey(key))
	if hv == 0 || hv > x.count {
		return 0, ErrNotFound
	}
	slot := x.slots[(hv-1)*slotSize:]
	if binary.LittleEndian.Uint64(slot[0:8]) != fingerprint(key) {
		return 0, ErrNotFound
	}
	return binary.LittleEndian.Uint64(slot[8:16]), nil
}

// Lookup reads and parses the summary line for key.
func (x *Index) Lookup(key string) (summary.Entry, error) {
	off, err := x.Offset(key)
	if err != nil {
		return summary.Entry{}, err
	}
	br := bufio.NewReader(io.NewSectionReader(x.summary, int64(off), 1<<62))
	line, err := br.ReadString('\n')
	if line == "" && err != nil {
		return summary.Entry{}, fmt.Errorf("read summary at %d: %w", off, err)
	}
	e, err := summary.ParseLine(line)
	if err != nil {
		return summary.Entry{}, fmt.Errorf("parse summary at %d: %w", off, err)
	}
	// Fingerprints can collide for keys outside the index.
	if e.Key != key {
		return summary.Entry{}, ErrNotFound
	}
	return e, nil
}

func hashKey(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// fingerprint uses a second hash so a foreign key rarely passes as indexed.
func fingerprint(s string) uint64 {
	h := fnv.New64()
	h.Write([]byte(s))
	return h.Sum64()
}
