package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode"
)

// notFound is what the model is told to answer when the document does not
// contain the requested value. It is reported to callers as "".
const notFound = "NOT_FOUND"

const chunkSize = 1500

const systemPrompt = `You extract data from Argentine invoices (facturas).
Answer using only the document text provided by the user.
Reply with the requested value only, exactly as written in the document, without explanations or extra words.
If the document does not contain the information, reply with ` + notFound + `.`

// TextSource turns a document on disk into text. Implemented by Loader.
type TextSource interface {
	Text(ctx context.Context, path string) (string, error)
}

// OpenAI is an Engine that answers questions with a chat-completions model,
// sending the relevant parts of the document as context.
type OpenAI struct {
	cfg    Config
	source TextSource
	http   *http.Client
	logger *slog.Logger
}

func NewOpenAI(cfg Config, source TextSource, logger *slog.Logger) *OpenAI {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAI{
		cfg:    cfg,
		source: source,
		http:   &http.Client{Timeout: cfg.QueryTimeout},
		logger: logger,
	}
}

func (o *OpenAI) Load(ctx context.Context, path string) (Index, error) {
	text, err := o.source.Text(ctx, path)
	if err != nil {
		return nil, err
	}
	return &documentIndex{engine: o, chunks: splitChunks(text, chunkSize)}, nil
}

type documentIndex struct {
	engine *OpenAI
	chunks []string
}

func (d *documentIndex) Query(ctx context.Context, question string) (string, error) {
	o := d.engine
	start := time.Now()
	docContext := selectContext(d.chunks, question, o.cfg.MaxContextChars)

	body := map[string]any{
		"model":       o.cfg.Model,
		"temperature": 0,
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": "Document:\n" + docContext + "\n\nQuestion: " + question},
		},
	}

	raw, err := o.post(ctx, o.cfg.BaseURL+"/chat/completions", body)
	if err != nil {
		o.logger.WarnContext(ctx, "llm.query.http_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", fmt.Errorf("no choices in openai response")
	}

	answer := strings.TrimSpace(cc.Choices[0].Message.Content)
	if strings.EqualFold(strings.Trim(answer, ".\"' "), notFound) {
		answer = ""
	}
	o.logger.DebugContext(ctx, "llm.query.ok",
		"model", o.cfg.Model,
		"context_chars", len(docContext),
		"answer_len", len(answer),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return answer, nil
}

func (o *OpenAI) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if o.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai http error: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read openai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(data), 1024))
	}
	return data, nil
}

// splitChunks groups paragraphs into chunks of roughly size characters.
// A paragraph longer than size becomes a chunk of its own.
func splitChunks(text string, size int) []string {
	var (
		chunks []string
		cur    strings.Builder
	)
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(para)+2 > size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// selectContext returns the whole document when it fits in max characters.
// Otherwise it keeps the chunks sharing the most terms with the question,
// in document order.
func selectContext(chunks []string, question string, max int) string {
	total := 0
	for _, c := range chunks {
		total += len(c) + 2
	}
	if total <= max {
		return strings.Join(chunks, "\n\n")
	}

	terms := tokenize(question)
	type scored struct {
		idx   int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		lower := strings.ToLower(c)
		s := 0
		for t := range terms {
			s += strings.Count(lower, t)
		}
		ranked[i] = scored{idx: i, score: s}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var picked []int
	used := 0
	for _, r := range ranked {
		n := len(chunks[r.idx]) + 2
		if used+n > max {
			continue
		}
		picked = append(picked, r.idx)
		used += n
	}
	if len(picked) == 0 && len(chunks) > 0 {
		best := chunks[ranked[0].idx]
		return best[:min(max, len(best))]
	}
	sort.Ints(picked)

	parts := make([]string, len(picked))
	for i, idx := range picked {
		parts[i] = chunks[idx]
	}
	return strings.Join(parts, "\n\n")
}

func tokenize(s string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) >= 3 {
			terms[f] = struct{}{}
		}
	}
	return terms
}
