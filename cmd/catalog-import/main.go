// Command catalog-import bulk-loads supplier catalog feeds into the product
// table. A feed is a gzip-compressed file of JSON lines, one product per
// line. Feeds overlap: the same SKU can appear in several files, and within
// one run the first occurrence wins. Files are parsed concurrently; writes
// are batched.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/nuhin13/test-ecom/internal/domain/product"
	"github.com/nuhin13/test-ecom/internal/repository"
)

const (
	// Sized for the largest supplier dumps seen so far.
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 500
	progressEvery = 100_000
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("ECOM_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.jsonl.gz files in %s", dataDir)
	}

	slog.Info("parsing feeds", slog.Int("files", len(files)))

	parsed, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeProducts(ctx, repository.NewProductRepository(pool), parsed)
}

// parseFeeds streams every file concurrently, one goroutine per file,
// preserving the file order in the result so dedupe is deterministic.
func parseFeeds(ctx context.Context, files []string) ([][]product.Product, error) {
	parsed := make([][]product.Product, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			products, err := parseFeedFile(ctx, f)
			if err != nil {
				return errors.Wrapf(err, "parse %s", f)
			}
			slog.Info("feed parsed", slog.String("file", f), slog.Int("products", len(products)))
			parsed[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parsed, nil
}

// parseFeedFile streams one gzipped JSON-lines feed.
func parseFeedFile(ctx context.Context, path string) ([]product.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open feed")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	var (
		products []product.Product
		count    uint64
	)
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		p, err := decodeProductLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", count+1)
		}
		products = append(products, p)

		count++
		if count%progressEvery == 0 {
			slog.Info("parse progress", slog.String("file", path), slog.Uint64("lines", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan feed")
	}
	return products, nil
}

// decodeProductLine decodes one feed line without building an intermediate
// interface{} tree.
func decodeProductLine(line []byte) (product.Product, error) {
	p := product.Product{
		ID:        uuid.New().String(),
		Available: true,
	}

	d := jx.DecodeBytes(line)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "sku":
			v, err := d.Str()
			p.SKU = v
			return err
		case "name":
			v, err := d.Str()
			p.Name = v
			return err
		case "description":
			v, err := d.Str()
			p.Description = v
			return err
		case "category":
			v, err := d.Str()
			p.Category = v
			return err
		case "price":
			v, err := d.Str()
			if err != nil {
				return err
			}
			p.Price, err = decimal.NewFromString(v)
			return err
		case "discounted_price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			v, err := d.Str()
			if err != nil {
				return err
			}
			dp, err := decimal.NewFromString(v)
			if err != nil {
				return err
			}
			p.DiscountedPrice = &dp
			return err
		case "images":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				p.Images = append(p.Images, v)
				return nil
			})
		case "stock":
			v, err := d.Int()
			p.Stock = v
			return err
		case "available":
			v, err := d.Bool()
			p.Available = v
			return err
		default:
			return d.Skip()
		}
	}); err != nil {
		return product.Product{}, errors.Wrap(err, "decode product")
	}

	if p.SKU == "" {
		return product.Product{}, errors.New("missing sku")
	}
	if p.Name == "" {
		return product.Product{}, errors.New("missing name")
	}
	return p, nil
}

// productWriter is the slice of the product repository the import needs.
type productWriter interface {
	UpsertBatch(ctx context.Context, products []product.Product) error
	SKUUpsertedSince(ctx context.Context, sku string, since time.Time) (bool, error)
}

// writeProducts dedupes parsed feeds by SKU and upserts the survivors in
// batches. Memory stays bounded across feeds of millions of entries: the only
// per-SKU state is a bloom filter plus an exact map of the current unflushed
// batch. A bloom hit only means "probably seen", so before dropping a record
// it is confirmed against that map and then against the rows this run already
// wrote, keyed by updated_at. A false positive fails both checks and the
// record is written normally.
func writeProducts(ctx context.Context, store productWriter, feeds [][]product.Product) error {
	runStart := time.Now()
	seenProbably := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	pending := make(map[string]struct{}, batchSize)

	var (
		batch   []product.Product
		written int
		dropped int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.UpsertBatch(ctx, batch); err != nil {
			return err
		}
		written += len(batch)
		slog.Info("write progress", slog.Int("written", written))
		batch = batch[:0]
		clear(pending)
		return nil
	}

	for _, feed := range feeds {
		for _, p := range feed {
			if seenProbably.TestString(p.SKU) {
				if _, dup := pending[p.SKU]; dup {
					dropped++
					continue
				}
				dup, err := store.SKUUpsertedSince(ctx, p.SKU, runStart)
				if err != nil {
					return errors.Wrapf(err, "confirm duplicate %q", p.SKU)
				}
				if dup {
					dropped++
					continue
				}
			}
			seenProbably.AddString(p.SKU)
			pending[p.SKU] = struct{}{}

			batch = append(batch, p)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("import summary", slog.Int("written", written), slog.Int("duplicates_dropped", dropped))
	return nil
}
