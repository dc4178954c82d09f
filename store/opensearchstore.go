package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/centosci/kaijs-bridge/bridgeerr"
)

// OpenSearchStore is the indexed-store variant's DocStore adapter. OpenSearch
// speaks the Elasticsearch bulk/index REST API, so the official Elasticsearch
// client is wire-compatible for the subset of operations the bridge needs.
type OpenSearchStore struct {
	es *elasticsearch.Client
}

// NewOpenSearchStore builds a client pointed at addresses.
func NewOpenSearchStore(addresses []string) (*OpenSearchStore, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, &bridgeerr.DocstoreFatalError{Op: "opensearch client init", Err: err}
	}
	return &OpenSearchStore{es: client}, nil
}

// OpenCollection ensures an index exists with want's fields declared as
// keyword/indexed mapping properties. OpenSearch has no notion of dropping
// individual secondary indexes the way Mongo does; index reconciliation here
// is limited to mapping fields used for query filtering.
func (s *OpenSearchStore) OpenCollection(ctx context.Context, name string, want []IndexSpec) error {
	existsReq := esapi.IndicesExistsRequest{Index: []string{name}}
	existsResp, err := existsReq.Do(ctx, s.es)
	if err != nil {
		return &bridgeerr.DocstoreFatalError{Op: "opensearch indices.exists", Err: err}
	}
	defer existsResp.Body.Close()

	if existsResp.StatusCode == 200 {
		return nil
	}

	properties := map[string]interface{}{
		"type": map[string]interface{}{"type": "keyword"},
		"aid":  map[string]interface{}{"type": "keyword"},
	}
	for _, idx := range want {
		for field := range idx.Keys {
			properties[field] = map[string]interface{}{"type": "keyword"}
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"mappings": map[string]interface{}{"properties": properties},
	})
	if err != nil {
		return fmt.Errorf("store: marshaling index mapping for %s: %w", name, err)
	}

	createReq := esapi.IndicesCreateRequest{Index: name, Body: bytes.NewReader(body)}
	resp, err := createReq.Do(ctx, s.es)
	if err != nil {
		return &bridgeerr.DocstoreFatalError{Op: "opensearch indices.create", Err: err}
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return &bridgeerr.DocstoreFatalError{Op: "opensearch indices.create", Err: fmt.Errorf("status %s", resp.Status())}
	}
	return nil
}

// FindOrCreateByKey looks the document up by its (type, aid) id, creating it
// with _version: 1 if absent.
func (s *OpenSearchStore) FindOrCreateByKey(ctx context.Context, collection string, key map[string]interface{}, onCreate map[string]interface{}) (map[string]interface{}, bool, error) {
	docID := docIDFromKey(key)

	getReq := esapi.GetRequest{Index: collection, DocumentID: docID}
	getResp, err := getReq.Do(ctx, s.es)
	if err != nil {
		return nil, false, &bridgeerr.DocstoreFatalError{Op: "opensearch get", Err: err}
	}
	defer getResp.Body.Close()

	if getResp.StatusCode == 200 {
		var envelope struct {
			Source map[string]interface{} `json:"_source"`
		}
		if err := json.NewDecoder(getResp.Body).Decode(&envelope); err != nil {
			return nil, false, fmt.Errorf("store: decoding existing doc %s: %w", docID, err)
		}
		return envelope.Source, false, nil
	}

	doc := map[string]interface{}{"_version": int64(1)}
	for k, v := range onCreate {
		doc[k] = v
	}
	for k, v := range key {
		doc[k] = v
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return nil, false, fmt.Errorf("store: marshaling new doc %s: %w", docID, err)
	}

	indexReq := esapi.IndexRequest{
		Index:      collection,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
		OpType:     "create",
	}
	indexResp, err := indexReq.Do(ctx, s.es)
	if err != nil {
		return nil, false, &bridgeerr.DocstoreFatalError{Op: "opensearch index create", Err: err}
	}
	defer indexResp.Body.Close()
	if indexResp.IsError() {
		return nil, false, &bridgeerr.DocstoreFatalError{Op: "opensearch index create", Err: fmt.Errorf("status %s", indexResp.Status())}
	}

	return doc, true, nil
}

// CASUpdate uses a painless script that checks ctx._source._version before
// applying setOps, mirroring the filter={_id, _version}/$set/$inc semantics
// of the Mongo adapter on a store that has no native compare-and-swap.
func (s *OpenSearchStore) CASUpdate(ctx context.Context, collection string, id interface{}, expectedVersion int64, setOps map[string]interface{}) (bool, error) {
	docID := fmt.Sprintf("%v", id)

	script := map[string]interface{}{
		"script": map[string]interface{}{
			"source": `if (ctx._source._version != params.expected) { ctx.op = 'noop'; } else { for (entry in params.setOps.entrySet()) { ctx._source[entry.getKey()] = entry.getValue(); } ctx._source._version += 1; }`,
			"lang":   "painless",
			"params": map[string]interface{}{
				"expected": expectedVersion,
				"setOps":   setOps,
			},
		},
	}

	body, err := json.Marshal(script)
	if err != nil {
		return false, fmt.Errorf("store: marshaling cas script for %s: %w", docID, err)
	}

	req := esapi.UpdateRequest{Index: collection, DocumentID: docID, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, s.es)
	if err != nil {
		return false, &bridgeerr.DocstoreFatalError{Op: "opensearch update", Err: err}
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return false, &bridgeerr.DocstoreFatalError{Op: "opensearch update", Err: fmt.Errorf("status %s", resp.Status())}
	}

	var result struct {
		Result string `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("store: decoding cas update result for %s: %w", docID, err)
	}

	return result.Result == "updated", nil
}

// Insert creates a new document with an auto-assigned id, used by the
// sideline stores.
func (s *OpenSearchStore) Insert(ctx context.Context, collection string, doc map[string]interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshaling sideline doc: %w", err)
	}
	req := esapi.IndexRequest{Index: collection, Body: bytes.NewReader(body)}
	resp, err := req.Do(ctx, s.es)
	if err != nil {
		return &bridgeerr.DocstoreFatalError{Op: "opensearch insert", Err: err}
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return &bridgeerr.DocstoreFatalError{Op: "opensearch insert", Err: fmt.Errorf("status %s", resp.Status())}
	}
	return nil
}

// BulkUpsert serializes ops into a single newline-delimited bulk request,
// matching the flush path's "atomic-per-op" requirement: each op succeeds or
// fails independently, but they are shipped as one HTTP round trip.
func (s *OpenSearchStore) BulkUpsert(ctx context.Context, collection string, ops []UpsertOp) error {
	if len(ops) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, op := range ops {
		docID := docIDFromKey(op.Filter)
		action := map[string]interface{}{
			"index": map[string]interface{}{"_index": collection, "_id": docID},
		}
		actionLine, err := json.Marshal(action)
		if err != nil {
			return fmt.Errorf("store: marshaling bulk action for %s: %w", docID, err)
		}
		docLine, err := json.Marshal(op.Doc)
		if err != nil {
			return fmt.Errorf("store: marshaling bulk doc for %s: %w", docID, err)
		}
		buf.Write(actionLine)
		buf.WriteByte('\n')
		buf.Write(docLine)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{Body: &buf}
	resp, err := req.Do(ctx, s.es)
	if err != nil {
		return &bridgeerr.BulkFlushError{Count: len(ops), Err: err}
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return &bridgeerr.BulkFlushError{Count: len(ops), Err: fmt.Errorf("status %s", resp.Status())}
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("store: decoding bulk response: %w", err)
	}
	if result.Errors {
		return &bridgeerr.BulkFlushError{Count: len(ops), Err: fmt.Errorf("one or more bulk operations failed")}
	}

	return nil
}

func (s *OpenSearchStore) Close(_ context.Context) error {
	return nil
}

func docIDFromKey(key map[string]interface{}) string {
	typ, _ := key["type"].(string)
	aid, _ := key["aid"].(string)
	return strings.Join([]string{typ, aid}, ":")
}
