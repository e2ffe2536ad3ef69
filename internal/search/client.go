// Package search maintains a full-text index of ingested posts in
// Elasticsearch. Indexing is best-effort: the relational store is the source
// of truth and the index only serves the search endpoint.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/thebtf/civicpulse/pkg/models"
)

// DefaultIndex is the post index name.
const DefaultIndex = "civicpulse-posts"

// PostDocument is the indexed projection of a post.
type PostDocument struct {
	Link               string    `json:"link"`
	Content            string    `json:"content"`
	SubjectDescription string    `json:"subject_description,omitempty"`
	Source             string    `json:"source"`
	TopicID            int64     `json:"topic_id"`
	EventID            int64     `json:"event_id,omitempty"`
	SatisfactionRating int       `json:"satisfaction_rating"`
	Timestamp          time.Time `json:"timestamp"`
}

// Params narrow a post search.
type Params struct {
	Query   string
	Source  string
	TopicID int64
	From    int
	Size    int
	Start   *time.Time
	End     *time.Time
}

// Result bundles hits and the total match count.
type Result struct {
	Total int64
	Items []PostDocument
}

// Client wraps go-elasticsearch with post-index helpers.
type Client struct {
	es     *elasticsearch.Client
	index  string
	logger zerolog.Logger
}

// New connects to Elasticsearch at addr.
func New(addr, index string, logger zerolog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	if index == "" {
		index = DefaultIndex
	}
	return &Client{
		es:     es,
		index:  index,
		logger: logger.With().Str("component", "search").Logger(),
	}, nil
}

// Ping checks that Elasticsearch is reachable.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}
	return nil
}

// IndexPost writes one post into the index, keyed by its link.
func (c *Client) IndexPost(ctx context.Context, post *models.Post, eventID int64) error {
	doc := PostDocument{
		Link:               post.Link,
		Content:            post.Content,
		SubjectDescription: post.SubjectDescription,
		Source:             post.Source,
		TopicID:            post.TopicID,
		EventID:            eventID,
		SatisfactionRating: post.SatisfactionRating,
		Timestamp:          post.Date,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal post doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: post.Link,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index post: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index post failed: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

// SearchPosts executes a bool query over the post index, newest first.
func (c *Client) SearchPosts(ctx context.Context, params Params) (*Result, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 3)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"subject_description^2", "content"},
			},
		})
	}
	if params.Source != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"source": params.Source},
		})
	}
	if params.TopicID != 0 {
		filters = append(filters, map[string]any{
			"term": map[string]any{"topic_id": params.TopicID},
		})
	}
	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"timestamp": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{{"match_all": map[string]any{}}}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{"timestamp": map[string]any{"order": "desc"}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search posts failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source PostDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]PostDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}
	return &Result{Total: parsed.Hits.Total.Value, Items: items}, nil
}
