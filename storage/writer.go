package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"
	"github.com/parquet-go/parquet-go"
	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/ohlcv"
)

// ErrExists is returned by Write when overwrite is false and the
// target file already exists. The existing file is untouched.
var ErrExists = errors.New("partition file already exists")

// ErrLockTimeout is returned when the file lock cannot be acquired
// within the writer's lock timeout.
var ErrLockTimeout = errors.New("partition lock timeout")

// DefaultRowGroupSize rows per Parquet row group.
const DefaultRowGroupSize = 10_000

const defaultLockTimeout = 30 * time.Second

// Writer persists validated rows into the partitioned dataset.
// Concurrent writers to the same path serialise on a sidecar
// <path>.lock; a write that fails mid-flight leaves no partial file
// (temp file in the target directory, then atomic rename).
type Writer struct {
	Root         string
	Codec        string
	RowGroupSize int
	LockTimeout  time.Duration
}

// NewWriter builds a Writer over root with the configured codec.
func NewWriter(root, codec string) (*Writer, error) {
	if _, err := codecFor(codec); err != nil {
		return nil, err
	}
	return &Writer{
		Root:         root,
		Codec:        codec,
		RowGroupSize: DefaultRowGroupSize,
		LockTimeout:  defaultLockTimeout,
	}, nil
}

func codecFor(name string) (parquet.WriterOption, error) {
	switch name {
	case "snappy", "":
		return parquet.Compression(&parquet.Snappy), nil
	case "zstd":
		return parquet.Compression(&parquet.Zstd), nil
	case "lz4":
		return parquet.Compression(&parquet.Lz4Raw), nil
	case "gzip":
		return parquet.Compression(&parquet.Gzip), nil
	default:
		return nil, fmt.Errorf("unsupported compression codec %q", name)
	}
}

// Write persists rows as the partition (frame, symbol, tradingDate,
// jobID) and returns the file path. Rows are sorted ascending by
// ts_ns before writing. Every row must carry the mandatory fields and
// fall on tradingDate.
func (w *Writer) Write(ctx context.Context, rows []Row, frame string, symbol ohlcv.Symbol, tradingDate, jobID string, overwrite bool) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("refusing to write empty partition %s/%s/%s", frame, symbol, tradingDate)
	}
	for i, row := range rows {
		if err := checkRow(row, symbol, tradingDate); err != nil {
			return "", fmt.Errorf("row %d: %w", i, err)
		}
	}

	var sorted = make([]Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TsNs < sorted[j].TsNs })

	var part = Partition{Frame: frame, Symbol: symbol, TradingDate: tradingDate, JobID: jobID}
	var path = part.Path(w.Root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating partition directory: %w", err)
	}

	var lock = flock.New(path + ".lock")
	var lockCtx, cancel = context.WithTimeout(ctx, w.lockTimeout())
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil || !locked {
		if err == nil || errors.Is(err, context.DeadlineExceeded) {
			err = ErrLockTimeout
		}
		return "", fmt.Errorf("locking %s: %w", path, err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.WithFields(log.Fields{"path": path, "error": err}).Warn("releasing partition lock failed")
		}
	}()

	if _, statErr := os.Stat(path); statErr == nil && !overwrite {
		return "", fmt.Errorf("writing %s: %w", path, ErrExists)
	}

	if err := w.writeFile(path, sorted); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{
		"partition": part.String(),
		"rows":      len(sorted),
		"codec":     w.Codec,
	}).Debug("wrote partition")
	return path, nil
}

func (w *Writer) writeFile(path string, rows []Row) (err error) {
	var codec, codecErr = codecFor(w.Codec)
	if codecErr != nil {
		return codecErr
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	var pw = parquet.NewGenericWriter[Row](tmp, codec)
	var groupSize = w.RowGroupSize
	if groupSize <= 0 {
		groupSize = DefaultRowGroupSize
	}
	for start := 0; start < len(rows); start += groupSize {
		var end = start + groupSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err = pw.Write(rows[start:end]); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("writing row group: %w", err)
		}
		if err = pw.Flush(); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("flushing row group: %w", err)
		}
	}
	if err = pw.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	return nil
}

func (w *Writer) lockTimeout() time.Duration {
	if w.LockTimeout > 0 {
		return w.LockTimeout
	}
	return defaultLockTimeout
}

func checkRow(row Row, symbol ohlcv.Symbol, tradingDate string) error {
	if row.Symbol != symbol.String() {
		return fmt.Errorf("row symbol %q does not match partition symbol %q", row.Symbol, symbol)
	}
	if row.TsNs <= 0 {
		return fmt.Errorf("row has non-positive ts_ns %d", row.TsNs)
	}
	if got := ohlcv.TimestampFromNanos(row.TsNs).TradingDate(); got != tradingDate {
		return fmt.Errorf("row trading date %s does not match partition date %s", got, tradingDate)
	}
	if row.Open == 0 || row.High == 0 || row.Low == 0 || row.Close == 0 {
		return fmt.Errorf("row at %d is missing a mandatory price field", row.TsNs)
	}
	return nil
}
