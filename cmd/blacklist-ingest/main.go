// Command blacklist-ingest builds the fraud blacklist from shared fraud
// report dumps. Each dump is a gzip file with one phone number per line;
// a number reported in 2 or more independent dumps is treated as
// confirmed and written to the blacklist table.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
	"github.com/xenking/rodela-order-api/internal/storage/postgres"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 5_000_000

	// Bangladeshi mobile numbers: 11 digits starting with 01.
	phoneLen = 11
)

// fileResult holds candidate phones found in a single dump during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
		numFiles    int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing fraudreportN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&numFiles, "files", 3, "number of fraud report dumps to ingest")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, numFiles); err != nil {
		slog.Error("blacklist ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("blacklist ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, numFiles int) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("fraudreport%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: one bloom filter per dump, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: phones appearing in 2+ dumps.
	slog.Info("pass 2: finding confirmed phones")

	confirmed, err := findConfirmedPhones(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find confirmed phones")
	}

	slog.Info("confirmed phones found", slog.Int("count", len(confirmed)))

	if len(confirmed) == 0 {
		slog.Info("nothing to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewBlacklistRepository(pool)
	for i, phone := range confirmed {
		err := repo.Add(ctx, blacklist.Entry{
			Phone:  phone,
			Reason: "reported in multiple fraud dumps",
		})
		if err != nil {
			return errors.Wrapf(err, "add %s", phone)
		}
		if (i+1)%10_000 == 0 {
			slog.Info("insert progress", slog.Int("done", i+1))
		}
	}

	slog.Info("blacklist written", slog.Int("count", len(confirmed)))
	return nil
}

func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(phone string) {
			filter.AddString(phone)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("file", idx+1),
					slog.Uint64("phones", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_phones", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findConfirmedPhones re-streams each dump and checks phones against the
// OTHER dumps' filters. A phone counts as confirmed when at least two
// dumps carry it.
func findConfirmedPhones(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, i, f, filters, results))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, r := range results {
		for phone, mask := range r.candidates {
			merged[phone] |= mask
		}
	}

	var confirmed []string
	for phone, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			confirmed = append(confirmed, phone)
		}
	}
	return confirmed, nil
}

func findCandidatesInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(phone string) {
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("phones", count),
				)
			}

			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(phone) {
					candidates[phone] |= fileBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_phones", count),
			slog.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile reads a gzip dump line by line, normalizing each line to a
// bare 11-digit phone and skipping anything malformed.
func streamGzFile(ctx context.Context, path string, fn func(phone string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if phone, ok := normalizePhone(scanner.Text()); ok {
			fn(phone)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// normalizePhone strips separators and the +88 country prefix, accepting
// only well-formed 01XXXXXXXXX numbers.
func normalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	digits = strings.TrimPrefix(digits, "88")
	if len(digits) != phoneLen || !strings.HasPrefix(digits, "01") {
		return "", false
	}
	return digits, true
}
