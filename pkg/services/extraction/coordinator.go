package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"invoice-extractor/pkg/common"
	"invoice-extractor/pkg/services/engine"
)

// Result is what one extraction run produced.
type Result struct {
	// Fields has one entry per entry of Fields; nil means no value.
	Fields map[string]*string
	// FieldErrors records queries that failed. Their fields are nil in Fields.
	FieldErrors []*common.Error
	Items       []Item
	// RawItems is the engine's line-item answer, nil when the query failed
	// or came back empty.
	RawItems *string
}

// Snapshot returns the raw answers keyed by field name plus the raw
// line-item answer under RawItemsKey.
func (r *Result) Snapshot() map[string]any {
	out := make(map[string]any, len(r.Fields)+1)
	for k, v := range r.Fields {
		if v == nil {
			out[k] = nil
		} else {
			out[k] = *v
		}
	}
	if r.RawItems == nil {
		out[RawItemsKey] = nil
	} else {
		out[RawItemsKey] = *r.RawItems
	}
	return out
}

// Coordinator asks the engine for every invoice field of one document.
type Coordinator struct {
	engine engine.Engine
	cfg    engine.Config
	logger *slog.Logger
}

func NewCoordinator(eng engine.Engine, cfg engine.Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{engine: eng, cfg: cfg.WithDefaults(), logger: logger}
}

// Extract loads the document and queries every field concurrently. Only a
// load failure is returned as an error; per-field failures end up in
// Result.FieldErrors.
func (c *Coordinator) Extract(ctx context.Context, path string) (*Result, error) {
	start := time.Now()
	idx, err := c.engine.Load(ctx, path)
	if err != nil {
		return nil, common.New(common.KindDocumentLoad, "extraction.load", err)
	}

	res := &Result{Fields: make(map[string]*string, len(Fields))}
	for _, f := range Fields {
		res.Fields[f.Name] = nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(c.cfg.Concurrency)

	for _, f := range Fields {
		g.Go(func() error {
			answer, err := c.query(ctx, idx, f.Question)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.FieldErrors = append(res.FieldErrors, common.FieldError(common.KindFieldQuery, "extraction.query", f.Name, err))
				return nil
			}
			if answer != "" {
				res.Fields[f.Name] = &answer
			}
			return nil
		})
	}

	g.Go(func() error {
		answer, err := c.query(ctx, idx, itemsQuestion)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.FieldErrors = append(res.FieldErrors, common.FieldError(common.KindFieldQuery, "extraction.query", RawItemsKey, err))
			return nil
		}
		if answer != "" {
			res.RawItems = &answer
			res.Items = ParseItems(answer)
		}
		return nil
	})

	_ = g.Wait()

	sort.Slice(res.FieldErrors, func(i, j int) bool { return res.FieldErrors[i].Field < res.FieldErrors[j].Field })
	missing := 0
	for _, v := range res.Fields {
		if v == nil {
			missing++
		}
	}
	c.logger.InfoContext(ctx, "extraction finished",
		"fields", len(res.Fields),
		"missing", missing,
		"failed", len(res.FieldErrors),
		"items", len(res.Items),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	for _, fe := range res.FieldErrors {
		c.logger.WarnContext(ctx, "field query failed", "field", fe.Field, "error", fe.Err)
	}
	return res, nil
}

// query runs one question under the per-query timeout. A panic inside the
// engine is reported as an error for that question only.
func (c *Coordinator) query(ctx context.Context, idx engine.Index, question string) (answer string, err error) {
	qctx, cancel := context.WithTimeout(ctx, c.cfg.QueryTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			answer, err = "", fmt.Errorf("engine panic: %v", r)
		}
	}()

	answer, err = idx.Query(qctx, question)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
