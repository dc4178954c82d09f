// Package handlers implements the per-topic event-to-artifact projections:
// pure functions of (current document, envelope) that produce a proposed
// ArtifactModel for the updater to CAS-write. Each handler performs its own
// findOrCreate, since identity resolution (and, for tag events, an external
// hub query) has to happen before the document to merge into is known.
package handlers

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/centosci/kaijs-bridge/kojihub"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/store"
)

// Deps are the collaborators every handler in this package is built with.
type Deps struct {
	DocStore   store.DocStore
	Collection string
	Hubs       kojihub.HubForType
}

func toArtifactModel(doc map[string]interface{}) (*model.ArtifactModel, error) {
	var out model.ArtifactModel
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return nil, fmt.Errorf("handlers: building decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("handlers: decoding document into artifact model: %w", err)
	}
	return &out, nil
}

func emptyArtifactDoc() map[string]interface{} {
	return map[string]interface{}{
		"states":                []interface{}{},
		"current_state":         map[string]interface{}{},
		"current_state_lenghts": map[string]interface{}{},
		"resultsdb_testcase":    []interface{}{},
	}
}

func findOrCreate(ctx context.Context, deps Deps, artifactType model.ArtifactType, aid string) (*model.ArtifactModel, error) {
	key := map[string]interface{}{"type": string(artifactType), "aid": aid}
	onCreate := emptyArtifactDoc()
	onCreate["type"] = string(artifactType)
	onCreate["aid"] = aid

	doc, _, err := deps.DocStore.FindOrCreateByKey(ctx, deps.Collection, key, onCreate)
	if err != nil {
		return nil, fmt.Errorf("handlers: findOrCreate(%s, %s): %w", artifactType, aid, err)
	}
	return toArtifactModel(doc)
}

func floatAt(body map[string]interface{}, key string) (float64, bool) {
	v, ok := body[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func stringAt(body map[string]interface{}, key string) string {
	v, ok := body[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func boolAt(body map[string]interface{}, key string) bool {
	v, ok := body[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func objectAt(body map[string]interface{}, key string) map[string]interface{} {
	v, ok := body[key]
	if !ok {
		return nil
	}
	obj, _ := v.(map[string]interface{})
	return obj
}
