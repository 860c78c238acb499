// Package retention removes aged data: partition files older than a
// cutoff, and checkpoint/job rows past their useful life. Both
// operations support a dry-run inspection mode and never touch
// anything outside the configured root.
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/marketpipe/marketpipe/checkpoints"
)

// olderThanPattern is the retention expression grammar: <n>d, <n>m or
// <n>y, where d = 24h, m = 30d and y = 365d.
var olderThanPattern = regexp.MustCompile(`^(\d+)([dmy])$`)

// ParseOlderThan converts a retention expression into a duration.
func ParseOlderThan(expr string) (time.Duration, error) {
	var match = olderThanPattern.FindStringSubmatch(expr)
	if match == nil {
		return 0, fmt.Errorf("invalid retention expression %q (want <n>d, <n>m or <n>y)", expr)
	}
	var n, err = strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("invalid retention count %q: %w", match[1], err)
	}
	var day = 24 * time.Hour
	switch match[2] {
	case "d":
		return time.Duration(n) * day, nil
	case "m":
		return time.Duration(n) * 30 * day, nil
	default:
		return time.Duration(n) * 365 * day, nil
	}
}

// PruneFiles walks the partitioned layout under root and removes
// files whose date= segment is older than now - olderThan. It returns
// the paths removed (or, in dryRun, the paths that would be).
func PruneFiles(root string, olderThan time.Duration, dryRun bool) ([]string, error) {
	var cutoff = time.Now().UTC().Add(-olderThan)
	var victims []string

	root = filepath.Clean(root)
	var err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		// Deletion never crosses outside the configured root.
		if !strings.HasPrefix(filepath.Clean(path), root+string(filepath.Separator)) {
			return nil
		}

		var date, ok = partitionDate(path)
		if !ok {
			return nil
		}
		if date.Before(cutoff) {
			victims = append(victims, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking dataset %s: %w", root, err)
	}

	if dryRun {
		return victims, nil
	}
	for _, path := range victims {
		if err := os.Remove(path); err != nil {
			return victims, fmt.Errorf("removing %s: %w", path, err)
		}
		log.WithField("path", path).Info("pruned partition file")
	}
	return victims, nil
}

// partitionDate parses the trading date from a path's date= segment.
func partitionDate(path string) (time.Time, bool) {
	for _, segment := range strings.Split(filepath.ToSlash(path), "/") {
		if !strings.HasPrefix(segment, "date=") {
			continue
		}
		var date, err = time.Parse("2006-01-02", strings.TrimPrefix(segment, "date="))
		if err != nil {
			return time.Time{}, false
		}
		return date.UTC(), true
	}
	return time.Time{}, false
}

// PruneDatabase removes checkpoint and job rows not updated within
// olderThan. It returns the affected row count.
func PruneDatabase(ctx context.Context, store *checkpoints.Store, olderThan time.Duration, dryRun bool) (int64, error) {
	var cutoff = time.Now().UTC().Add(-olderThan)
	var n, err = store.PruneOlderThan(ctx, cutoff, dryRun)
	if err != nil {
		return n, err
	}
	log.WithFields(log.Fields{"rows": n, "dryRun": dryRun}).Info("pruned database rows")
	return n, nil
}
