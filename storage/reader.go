package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/parquet-go/parquet-go"
)

const readerCacheSize = 64

// Reader loads partitions back from the dataset. Validation and
// aggregation read the same 1m files back to back, so loads go through
// a small LRU keyed by path and mtime.
type Reader struct {
	Root  string
	cache *lru.Cache[string, []Row]
}

// NewReader builds a Reader over root.
func NewReader(root string) (*Reader, error) {
	var cache, err = lru.New[string, []Row](readerCacheSize)
	if err != nil {
		return nil, err
	}
	return &Reader{Root: root, cache: cache}, nil
}

// Read loads one partition file, sorted ascending by ts_ns.
func (r *Reader) Read(path string) ([]Row, error) {
	var info, err = os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading partition %s: %w", path, err)
	}
	var key = fmt.Sprintf("%s@%d.%d", path, info.ModTime().UnixNano(), info.Size())
	if rows, ok := r.cache.Get(key); ok {
		return rows, nil
	}

	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, rows)
	return rows, nil
}

func readFile(path string) ([]Row, error) {
	var file, err = os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening partition %s: %w", path, err)
	}
	defer file.Close()

	var pr = parquet.NewGenericReader[Row](file)
	defer pr.Close()

	var rows = make([]Row, 0, pr.NumRows())
	var buf = make([]Row, 256)
	for {
		n, err := pr.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading parquet %s: %w", path, err)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TsNs < rows[j].TsNs })
	return rows, nil
}

// ReadPartition loads the rows of a logical partition address.
func (r *Reader) ReadPartition(part Partition) ([]Row, error) {
	return r.Read(part.Path(r.Root))
}

// ScanJob locates every partition of a job within one frame, sorted by
// symbol then trading date.
func (r *Reader) ScanJob(frame, jobID string) ([]Partition, error) {
	var frameRoot = filepath.Join(r.Root, "frame="+frame)
	var parts []Partition

	var err = filepath.Walk(frameRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || filepath.Base(path) != jobID+".parquet" {
			return nil
		}
		part, parseErr := ParsePath(r.Root, path)
		if parseErr != nil {
			return nil // Not a dataset file; skip.
		}
		parts = append(parts, part)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scanning job %s: %w", jobID, err)
	}

	sort.Slice(parts, func(i, j int) bool {
		if parts[i].Symbol != parts[j].Symbol {
			return parts[i].Symbol < parts[j].Symbol
		}
		return parts[i].TradingDate < parts[j].TradingDate
	})
	return parts, nil
}
