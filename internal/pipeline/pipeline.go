package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/duckmesh/tabletalk/internal/catalog"
	"github.com/duckmesh/tabletalk/internal/llm"
	"github.com/duckmesh/tabletalk/internal/nl2sql"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/query"
)

const (
	StageIdentifyTable = "identify_table"
	StageGenerateSQL   = "generate_sql"
	StageExecuteSQL    = "execute_sql"
	StageSummarize     = "summarize"
)

type SQLGenerator interface {
	Generate(ctx context.Context, req nl2sql.Request) (string, error)
}

type Deps struct {
	Catalog   catalog.Catalog
	Completer llm.Completer
	Generator SQLGenerator
	Executor  query.Executor
	Logger    *slog.Logger
}

type Pipeline struct {
	catalog   catalog.Catalog
	completer llm.Completer
	generator SQLGenerator
	executor  query.Executor
	logger    *slog.Logger

	runnable compose.Runnable[*turn, *turn]
}

// turn is the value carried between graph nodes.
type turn struct {
	state    State
	outcomes []Outcome
}

type stageFunc func(ctx context.Context, state State) (State, Outcome)

// New wires the four stages into a linear graph and compiles it once.
func New(ctx context.Context, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	case deps.Completer == nil:
		return nil, fmt.Errorf("completer is required")
	case deps.Generator == nil:
		return nil, fmt.Errorf("sql generator is required")
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor is required")
	}
	p := &Pipeline{
		catalog:   deps.Catalog,
		completer: deps.Completer,
		generator: deps.Generator,
		executor:  deps.Executor,
		logger:    observability.LoggerOrDiscard(deps.Logger),
	}

	graph := compose.NewGraph[*turn, *turn]()
	stages := []struct {
		name string
		run  stageFunc
	}{
		{name: StageIdentifyTable, run: p.identifyTable},
		{name: StageGenerateSQL, run: p.generateSQL},
		{name: StageExecuteSQL, run: p.executeSQL},
		{name: StageSummarize, run: p.summarize},
	}
	previous := compose.START
	for _, stage := range stages {
		if err := graph.AddLambdaNode(stage.name, p.node(stage.name, stage.run)); err != nil {
			return nil, fmt.Errorf("add %s node: %w", stage.name, err)
		}
		if err := graph.AddEdge(previous, stage.name); err != nil {
			return nil, fmt.Errorf("add edge %s -> %s: %w", previous, stage.name, err)
		}
		previous = stage.name
	}
	if err := graph.AddEdge(previous, compose.END); err != nil {
		return nil, fmt.Errorf("add edge %s -> end: %w", previous, err)
	}

	runnable, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile pipeline graph: %w", err)
	}
	p.runnable = runnable
	return p, nil
}

// Run passes state through every stage. Stage failures are recorded in the
// report rather than returned; an error here means the graph itself broke.
func (p *Pipeline) Run(ctx context.Context, state State) (Report, error) {
	out, err := p.runnable.Invoke(ctx, &turn{state: state})
	if err != nil {
		return Report{State: state}, fmt.Errorf("run pipeline: %w", err)
	}
	return Report{State: out.state, Outcomes: out.outcomes}, nil
}

func (p *Pipeline) node(name string, run stageFunc) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in *turn) (*turn, error) {
		start := time.Now()
		next, outcome := run(ctx, in.state)
		outcome.Stage = name
		observability.ObservePipelineStage(name, string(outcome.Status), time.Since(start))
		return &turn{state: next, outcomes: append(in.outcomes, outcome)}, nil
	})
}

func (p *Pipeline) stageLogger(ctx context.Context, stage string) *slog.Logger {
	logger := p.logger.With(slog.String("stage", stage))
	if traceID := observability.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	return logger
}
