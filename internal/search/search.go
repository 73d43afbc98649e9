// Package search keeps products in an Elasticsearch index and queries it.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/farmers_market/internal/models"
)

var ErrDisabled = errors.New("search is not configured")

type Index struct {
	ES   *elasticsearch.Client
	Name string
}

func New(es *elasticsearch.Client, name string) *Index {
	return &Index{ES: es, Name: name}
}

func (i *Index) Enabled() bool {
	return i != nil && i.ES != nil
}

type Result struct {
	Total    int64            `json:"total"`
	Products []models.Product `json:"products"`
}

func (i *Index) Search(ctx context.Context, query string, from, size int) (Result, error) {
	if !i.Enabled() {
		return Result{}, ErrDisabled
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"name^2", "description", "category", "location"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return Result{}, fmt.Errorf("encode search: %w", err)
	}

	res, err := i.ES.Search(
		i.ES.Search.WithContext(ctx),
		i.ES.Search.WithIndex(i.Name),
		i.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return Result{}, fmt.Errorf("search: %s", errorBody(res.Status(), res.Body))
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Product `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return Result{}, fmt.Errorf("decode search: %w", err)
	}

	out := Result{Total: r.Hits.Total.Value, Products: make([]models.Product, len(r.Hits.Hits))}
	for n, hit := range r.Hits.Hits {
		out.Products[n] = hit.Source
	}
	return out, nil
}

func (i *Index) IndexProduct(ctx context.Context, p models.Product) error {
	if !i.Enabled() {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}

	res, err := i.ES.Index(i.Name, bytes.NewReader(raw),
		i.ES.Index.WithContext(ctx),
		i.ES.Index.WithDocumentID(p.ID.String()),
	)
	if err != nil {
		return fmt.Errorf("index product %s: %w", p.ID, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index product %s: %s", p.ID, errorBody(res.Status(), res.Body))
	}
	return nil
}

// DeleteProduct removes a document; a document that is already gone is fine.
func (i *Index) DeleteProduct(ctx context.Context, id models.ID) error {
	if !i.Enabled() {
		return nil
	}
	res, err := i.ES.Delete(i.Name, id.String(), i.ES.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete product %s: %s", id, errorBody(res.Status(), res.Body))
	}
	return nil
}

// Reindex writes every product with one bulk request.
func (i *Index) Reindex(ctx context.Context, products []models.Product) error {
	if !i.Enabled() || len(products) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range products {
		meta := map[string]any{"index": map[string]any{"_index": i.Name, "_id": p.ID.String()}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("encode bulk meta: %w", err)
		}
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("encode bulk doc: %w", err)
		}
	}

	res, err := i.ES.Bulk(&buf, i.ES.Bulk.WithContext(ctx), i.ES.Bulk.WithIndex(i.Name))
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index: %s", errorBody(res.Status(), res.Body))
	}

	var r struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return fmt.Errorf("decode bulk: %w", err)
	}
	if r.Errors {
		return fmt.Errorf("bulk index: some documents failed")
	}
	return nil
}

func errorBody(status string, body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 1<<10))
	return status + ": " + string(b)
}
