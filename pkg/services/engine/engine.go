// Package engine turns an invoice document into a queryable index backed by
// a chat-completions model.
package engine

import (
	"context"
	"time"
)

// Engine loads documents into queryable indexes.
type Engine interface {
	Load(ctx context.Context, path string) (Index, error)
}

// Index answers natural-language questions about one loaded document.
// An empty answer means the document does not contain the information.
type Index interface {
	Query(ctx context.Context, question string) (string, error)
}

// Config for the model backing the engine. It is passed in explicitly;
// nothing in this package reads the environment.
type Config struct {
	BaseURL         string
	Model           string
	APIKey          string
	QueryTimeout    time.Duration
	MaxContextChars int
	// Concurrency bounds the number of in-flight queries per document.
	Concurrency int
}

// WithDefaults fills zero values with the defaults used by the service.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 60 * time.Second
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 60000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}
