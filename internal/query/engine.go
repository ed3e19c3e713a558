package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"owl-notify/internal/datasource"
	"owl-notify/internal/metrics"
	"owl-notify/internal/models"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"
)

// ErrRequiredQueryMalformed a required query produced something other than a row array
var ErrRequiredQueryMalformed = errors.New("required query did not return an array")

const (
	errRunningQuery  = "error running query"
	errUnparsableRow = "Unable to parse query result"
)

// BatchResult outcome of RunBatch. When Skipped is set Results is nil.
type BatchResult struct {
	Skipped bool
	Reason  string
	Results map[string]interface{}
}

// Engine renders SQL templates against a parameter object and runs them on the datasource
type Engine struct {
	executor datasource.Executor
	logger   *zap.Logger
}

// NewEngine creates the query engine
func NewEngine(executor datasource.Executor, logger *zap.Logger) *Engine {
	return &Engine{
		executor: executor,
		logger:   logger,
	}
}

// Render executes the SQL template with params as dot. Missing keys are errors.
func Render(tmpl string, params map[string]interface{}) (string, error) {
	t, err := template.New("query").
		Option("missingkey=error").
		Funcs(sprig.TxtFuncMap()).
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}

	if params == nil {
		params = map[string]interface{}{}
	}

	var sb strings.Builder
	if err := t.Execute(&sb, params); err != nil {
		return "", fmt.Errorf("failed to render query template: %w", err)
	}
	return sb.String(), nil
}

// RunQuery renders tmpl, executes it and decodes the JSON rows
func (e *Engine) RunQuery(ctx context.Context, tmpl string, params map[string]interface{}) (interface{}, error) {
	raw, err := e.execute(ctx, tmpl, params)
	if err != nil {
		return nil, err
	}

	var rows interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse query result: %w", err)
	}
	return rows, nil
}

// RunRows is RunQuery for callers that need an array of objects
func (e *Engine) RunRows(ctx context.Context, tmpl string, params map[string]interface{}) ([]map[string]interface{}, error) {
	raw, err := e.execute(ctx, tmpl, params)
	if err != nil {
		return nil, err
	}

	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("query did not return rows: %w", err)
	}
	return rows, nil
}

func (e *Engine) execute(ctx context.Context, tmpl string, params map[string]interface{}) ([]byte, error) {
	rendered, err := Render(tmpl, params)
	if err != nil {
		return nil, err
	}
	return e.executor.Execute(ctx, rendered)
}

// RunBatch runs queries in order with one parameter set. A failing query stores an
// error object as its result and the batch continues. A required query (by id) that
// returns no rows skips the batch; one that returns a non-array fails it with
// ErrRequiredQueryMalformed.
func (e *Engine) RunBatch(ctx context.Context, queries []models.NamedQuery, params map[string]interface{}, required map[string]bool) (BatchResult, error) {
	results := make(map[string]interface{}, len(queries))

	for _, q := range queries {
		start := time.Now()
		result := e.runOne(ctx, q, params)
		elapsed := time.Since(start)

		metrics.QueryDuration.WithLabelValues(q.ReferenceName).Observe(elapsed.Seconds())
		e.logger.Info("Query finished",
			zap.String("reference_name", q.ReferenceName),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)

		if required[q.ID] {
			rows, ok := result.([]interface{})
			if !ok {
				got, _ := json.Marshal(result)
				return BatchResult{}, fmt.Errorf("%w: %s (got: %s)", ErrRequiredQueryMalformed, q.ReferenceName, got)
			}
			if len(rows) == 0 {
				return BatchResult{
					Skipped: true,
					Reason:  fmt.Sprintf("Required query %s returned no results", q.ReferenceName),
				}, nil
			}
		}

		results[q.ReferenceName] = result
	}

	return BatchResult{Results: results}, nil
}

// runOne never fails; errors become the stored result
func (e *Engine) runOne(ctx context.Context, q models.NamedQuery, params map[string]interface{}) interface{} {
	raw, err := e.execute(ctx, q.Query, params)
	if err != nil {
		metrics.QueryErrorsTotal.WithLabelValues(q.ReferenceName).Inc()
		e.logger.Error("Error running query",
			zap.String("query_id", q.ID),
			zap.String("reference_name", q.ReferenceName),
			zap.Error(err),
		)
		return []interface{}{
			map[string]interface{}{
				"error":      errRunningQuery,
				"query":      q.Query,
				"parameters": params,
			},
		}
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		e.logger.Warn("Unable to parse query result",
			zap.String("reference_name", q.ReferenceName),
			zap.Error(err),
		)
		return []interface{}{
			map[string]interface{}{"error": errUnparsableRow},
		}
	}
	return result
}
