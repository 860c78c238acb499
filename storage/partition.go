// Package storage writes and reads the partitioned Parquet dataset.
// Files land in a Hive-style layout:
//
//	<root>/frame=<frame>/symbol=<symbol>/date=<YYYY-MM-DD>/<job_id>.parquet
package storage

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// Partition is the logical address of one dataset file.
type Partition struct {
	Frame       string
	Symbol      ohlcv.Symbol
	TradingDate string
	JobID       string
}

// Path renders the partition's file path under root.
func (p Partition) Path(root string) string {
	return filepath.Join(root,
		"frame="+p.Frame,
		"symbol="+p.Symbol.String(),
		"date="+p.TradingDate,
		p.JobID+".parquet",
	)
}

func (p Partition) String() string {
	return fmt.Sprintf("frame=%s/symbol=%s/date=%s/%s", p.Frame, p.Symbol, p.TradingDate, p.JobID)
}

// ParsePath recovers a Partition from a dataset-relative file path.
func ParsePath(root, path string) (Partition, error) {
	var rel, err = filepath.Rel(root, path)
	if err != nil {
		return Partition{}, fmt.Errorf("path %q is not under dataset root %q: %w", path, root, err)
	}
	var segments = strings.Split(filepath.ToSlash(rel), "/")
	if len(segments) != 4 {
		return Partition{}, fmt.Errorf("path %q is not a dataset partition", path)
	}

	var part Partition
	for i, prefix := range []string{"frame=", "symbol=", "date="} {
		if !strings.HasPrefix(segments[i], prefix) {
			return Partition{}, fmt.Errorf("path segment %q is missing %q", segments[i], prefix)
		}
	}
	part.Frame = strings.TrimPrefix(segments[0], "frame=")
	symbol, err := ohlcv.NewSymbol(strings.TrimPrefix(segments[1], "symbol="))
	if err != nil {
		return Partition{}, fmt.Errorf("partition path %q: %w", path, err)
	}
	part.Symbol = symbol
	part.TradingDate = strings.TrimPrefix(segments[2], "date=")
	part.JobID = strings.TrimSuffix(segments[3], ".parquet")
	if part.JobID == segments[3] {
		return Partition{}, fmt.Errorf("path %q is not a parquet partition", path)
	}
	return part, nil
}
