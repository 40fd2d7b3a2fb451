package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/agext/levenshtein"

	"github.com/duckmesh/tabletalk/internal/nl2sql"
	"github.com/duckmesh/tabletalk/internal/observability"
	"github.com/duckmesh/tabletalk/internal/query"
)

func (p *Pipeline) identifyTable(ctx context.Context, state State) (State, Outcome) {
	logger := p.stageLogger(ctx, StageIdentifyTable)
	if state.TableName != "" {
		logger.Info("table already selected", slog.String("table", state.TableName))
		return state, skipped("table already selected")
	}

	tables, err := p.catalog.ListTables(ctx)
	if err != nil {
		logger.Error("list tables failed", slog.Any("error", err))
		return state, failed("list tables failed", err)
	}
	if len(tables) == 0 {
		logger.Warn("no tables available")
		return state, degraded("no tables available", nil)
	}

	described := make([]tableDescription, 0, len(tables))
	for _, table := range tables {
		schema, err := p.catalog.GetSchema(ctx, table)
		if err != nil {
			logger.Warn("describe table failed", slog.String("table", table), slog.Any("error", err))
			described = append(described, tableDescription{Name: table, Schema: schemaUnavailable})
			continue
		}
		described = append(described, tableDescription{Name: table, Schema: schema.Describe()})
	}

	reply, err := p.completer.Complete(ctx, identifyPrompt(state.Query, described))
	if err != nil {
		logger.Error("table identification failed", slog.Any("error", err))
		return state, failed("table identification failed", err)
	}
	chosen := strings.TrimSpace(reply)
	if strings.EqualFold(chosen, "none") || !contains(tables, chosen) {
		attrs := []any{slog.String("answer", chosen)}
		if hint := closestTable(chosen, tables); hint != "" && !strings.EqualFold(chosen, "none") {
			attrs = append(attrs, slog.String("closest_table", hint))
		}
		logger.Warn("model chose invalid or no table", attrs...)
		return state, degraded("model chose invalid or no table", nil)
	}

	state.TableName = chosen
	logger.Info("selected table", slog.String("table", chosen))
	return state, ok()
}

func (p *Pipeline) generateSQL(ctx context.Context, state State) (State, Outcome) {
	logger := p.stageLogger(ctx, StageGenerateSQL)
	if state.TableName == "" {
		logger.Warn("no table selected; skipping sql generation")
		return state, skipped("no table selected")
	}

	schema, err := p.catalog.GetSchema(ctx, state.TableName)
	if err != nil {
		logger.Error("fetch schema failed", slog.String("table", state.TableName), slog.Any("error", err))
		return state, failed("fetch schema failed", err)
	}

	intent := Classify(state.Query, state)
	observability.IncrementIntent(string(intent.Kind))

	var sql string
	switch intent.Kind {
	case IntentGenderSwap:
		sql = BuildIntentSQL(state.TableName, intent)
		state.Filters = intent.Filters
		state.LastAction = ActionSelectRecords
	case IntentBreakdown:
		sql = BuildIntentSQL(state.TableName, intent)
		state.LastAction = ActionBreakdown
		state.LastGroup = intent.GroupColumn
	default:
		generated, err := p.generator.Generate(ctx, nl2sql.Request{
			Question: enrichedQuestion(state),
			Schema:   schema.Describe(),
			Table:    state.TableName,
		})
		if err != nil {
			logger.Error("sql generation failed", slog.Any("error", err))
			return state, failed("sql generation failed", err)
		}
		sql = generated
		if state.Filters != "" && !strings.Contains(strings.ToUpper(sql), "WHERE") {
			sql = strings.TrimRight(strings.TrimSpace(sql), ";") + "\nWHERE " + state.Filters + ";"
		}
	}

	state.SQL = sql
	if lowered := strings.ToLower(strings.TrimSpace(sql)); lowered == "" || !strings.HasPrefix(lowered, "select") {
		logger.Warn("generated sql is empty or not a select", slog.String("sql", sql))
		return state, degraded("generated sql is empty or not a select", nil)
	}
	logger.Info("sql generated", slog.String("intent", string(intent.Kind)), slog.String("sql", sql))
	return state, ok()
}

func (p *Pipeline) executeSQL(ctx context.Context, state State) (State, Outcome) {
	logger := p.stageLogger(ctx, StageExecuteSQL)
	if strings.TrimSpace(state.SQL) == "" {
		logger.Warn("no sql to execute")
		return state, skipped("no sql to execute")
	}

	result, err := p.executor.Run(ctx, query.Request{SQL: state.SQL, Table: state.TableName})
	if err != nil {
		var dbErr *query.DatabaseError
		if errors.As(err, &dbErr) {
			logger.Error("database error during query execution", slog.Any("error", err))
			state.Result = fmt.Sprintf("Database error: %v", dbErr.Err)
			return state, failed("database error", err)
		}
		logger.Error("unexpected error during query execution", slog.Any("error", err))
		state.Result = fmt.Sprintf("Execution error: %v", unwrapExecution(err))
		return state, failed("execution error", err)
	}

	state.Result = result.String()
	logger.Info("query executed", slog.Duration("duration", result.Duration), slog.Int("rows", len(result.Rows)))
	if filters, found := ExtractFilters(state.SQL); found {
		state.Filters = filters
		logger.Info("captured filters", slog.String("filters", filters))
	}
	return state, ok()
}

func (p *Pipeline) summarize(ctx context.Context, state State) (State, Outcome) {
	logger := p.stageLogger(ctx, StageSummarize)
	reply, err := p.completer.Complete(ctx, summarizePrompt(state))
	if err != nil {
		logger.Error("summarization failed", slog.Any("error", err))
		state.Answer = fmt.Sprintf("Summarization error: %v", err)
		return state, failed("summarization failed", err)
	}

	answer := strings.TrimSpace(reply)
	state.Answer = answer
	state.Memory = state.Memory + "\nUser: " + state.Query + "\nAI: " + answer + "\n"
	logger.Info("summarization complete")
	return state, ok()
}

// ExtractFilters returns the WHERE body of sql without any GROUP BY or
// ORDER BY tail or statement terminator. Matching is case-insensitive.
func ExtractFilters(sql string) (string, bool) {
	loc := whereKeyword.FindStringIndex(sql)
	if loc == nil {
		return "", false
	}
	body := sql[loc[1]:]
	if tail := tailKeyword.FindStringIndex(body); tail != nil {
		body = body[:tail[0]]
	}
	return query.StripTrailingSemicolons(body), true
}

var (
	whereKeyword = regexp.MustCompile(`(?i)WHERE`)
	tailKeyword  = regexp.MustCompile(`(?i)GROUP BY|ORDER BY`)
)

func unwrapExecution(err error) error {
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Err
	}
	return err
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func closestTable(answer string, tables []string) string {
	if answer == "" {
		return ""
	}
	best, bestScore := "", 0.0
	for _, table := range tables {
		score := levenshtein.Similarity(strings.ToLower(answer), table, nil)
		if score > bestScore {
			best, bestScore = table, score
		}
	}
	if bestScore < 0.5 {
		return ""
	}
	return best
}
