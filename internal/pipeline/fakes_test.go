package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/llm"
	"github.com/duckmesh/tabletalk/internal/nl2sql"
	"github.com/duckmesh/tabletalk/internal/query"
)

type fakeCatalog struct {
	tables     []string
	schemas    map[string]catalog.Schema
	listErr    error
	listCalls  int
	schemaErrs map[string]error
}

func (f *fakeCatalog) ListTables(context.Context) ([]string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tables, nil
}

func (f *fakeCatalog) GetSchema(_ context.Context, table string) (catalog.Schema, error) {
	if err := f.schemaErrs[table]; err != nil {
		return catalog.Schema{}, err
	}
	schema, ok := f.schemas[table]
	if !ok {
		return catalog.Schema{}, catalog.ErrNotFound
	}
	return schema, nil
}

// fakeCompleter answers by system prompt so one instance serves both the
// identify and summarize stages.
type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	prompts []llm.Prompt
}

func (f *fakeCompleter) Complete(_ context.Context, prompt llm.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if err := f.errs[prompt.System]; err != nil {
		return "", err
	}
	reply, ok := f.replies[prompt.System]
	if !ok {
		return "", errors.New("unexpected prompt")
	}
	return reply, nil
}

func (f *fakeCompleter) Name() string {
	return "fake"
}

func (f *fakeCompleter) count(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, prompt := range f.prompts {
		if prompt.System == system {
			n++
		}
	}
	return n
}

type fakeGenerator struct {
	sql      string
	err      error
	requests []nl2sql.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req nl2sql.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.sql, f.err
}

type fakeExecutor struct {
	result   query.Result
	err      error
	requests []query.Request
}

func (f *fakeExecutor) Run(_ context.Context, req query.Request) (query.Result, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func reviewsCatalog() *fakeCatalog {
	return &fakeCatalog{
		tables: []string{"orders", "reviews"},
		schemas: map[string]catalog.Schema{
			"orders": {Table: "orders", Columns: []catalog.Column{{Name: "orderid", Type: "bigint"}}},
			"reviews": {Table: "reviews", Columns: []catalog.Column{
				{Name: "usergender", Type: "text"},
				{Name: "userage", Type: "bigint"},
				{Name: "reviewrating", Type: "double precision"},
			}},
		},
	}
}

func newTestPipeline(cat *fakeCatalog, completer *fakeCompleter, generator *fakeGenerator, executor *fakeExecutor) *Pipeline {
	return &Pipeline{
		catalog:   cat,
		completer: completer,
		generator: generator,
		executor:  executor,
		logger:    discardLogger(),
	}
}
