package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/storage"
)

// TableLoader replaces a table with a cleaned dataset and reports how many
// rows were written.
type TableLoader interface {
	Replace(ctx context.Context, table string, ds Dataset, types []ColumnType) (int, error)
}

// Invalidator drops cached metadata for a table.
type Invalidator interface {
	Invalidate(table string)
}

type Config struct {
	MaxRows int
	// Archive copies the raw file and a Parquet snapshot to Store.
	Archive bool
}

type Request struct {
	Path      string
	FileName  string
	TableName string
}

type Result struct {
	Table   string
	Rows    int
	Columns []string
	Types   []ColumnType
	Message string
}

type Service struct {
	loader TableLoader
	cache  Invalidator
	store  storage.ObjectStore
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the loader with optional cache and object store. cache
// and store may be nil.
func NewService(loader TableLoader, cache Invalidator, store storage.ObjectStore, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		loader: loader,
		cache:  cache,
		store:  store,
		cfg:    cfg,
		logger: observability.LoggerOrDiscard(logger),
		now:    time.Now,
	}
}

// Ingest reads the file at req.Path and replaces req.TableName with its
// contents. Errors caused by the file itself wrap ErrValidation.
func (s *Service) Ingest(ctx context.Context, req Request) (result Result, err error) {
	start := s.now()
	defer func() {
		observability.ObserveUpload(result.Rows, err, s.now().Sub(start))
	}()

	table, err := NormalizeTableName(req.TableName)
	if err != nil {
		return Result{}, err
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = filepath.Base(req.Path)
	}
	format, err := DetectFormat(fileName)
	if err != nil {
		return Result{}, err
	}
	records, err := ReadRecords(req.Path, format)
	if err != nil {
		return Result{}, err
	}
	ds, err := buildDataset(records, s.cfg.MaxRows)
	if err != nil {
		return Result{}, err
	}
	types := InferTypes(ds)

	if s.loader == nil {
		return Result{}, fmt.Errorf("table loader is not configured")
	}
	rows, err := s.loader.Replace(ctx, table, ds, types)
	if err != nil {
		return Result{}, fmt.Errorf("load table %s: %w", table, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(table)
	}
	s.logger.Info("table replaced", "table", table, "rows", rows, "columns", len(ds.Columns), "format", format)

	switch {
	case s.store == nil:
	case s.cfg.Archive:
		s.archive(ctx, table, req.Path, fileName, ds, types)
	default:
		s.dropSnapshot(ctx, table)
	}

	return Result{
		Table:   table,
		Rows:    rows,
		Columns: ds.Columns,
		Types:   types,
		Message: fmt.Sprintf("Uploaded %d rows to table '%s' successfully", rows, table),
	}, nil
}

func (s *Service) archive(ctx context.Context, table, path, fileName string, ds Dataset, types []ColumnType) {
	if err := s.archiveRaw(ctx, table, path, fileName); err != nil {
		s.logger.Warn("archive raw upload failed", "table", table, "error", err)
	}
	if err := s.publishSnapshot(ctx, table, ds, types); err != nil {
		s.logger.Warn("publish parquet snapshot failed", "table", table, "error", err)
	}
}

// dropSnapshot removes the previous Parquet snapshot, which no longer matches
// the table after a replace-load.
func (s *Service) dropSnapshot(ctx context.Context, table string) {
	key, err := storage.BuildSnapshotPath(table)
	if err != nil {
		s.logger.Warn("build snapshot key failed", "table", table, "error", err)
		return
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.Warn("drop stale parquet snapshot failed", "table", table, "error", err)
	}
}

func (s *Service) archiveRaw(ctx context.Context, table, path, fileName string) error {
	key, err := storage.BuildUploadPath(table, uuid.NewString(), fileName)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat upload: %w", err)
	}
	if _, err := s.store.Put(ctx, key, file, info.Size(), storage.PutOptions{ContentType: storage.ContentTypeBinary}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Service) publishSnapshot(ctx context.Context, table string, ds Dataset, types []ColumnType) error {
	key, err := storage.BuildSnapshotPath(table)
	if err != nil {
		return err
	}
	payload, err := EncodeParquet(table, ds, types)
	if err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: storage.ContentTypeParquet}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
