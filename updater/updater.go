// Package updater performs the optimistically-concurrent read-merge-CAS
// write for one envelope: validate, invoke the resolved handler to produce a
// proposed ArtifactModel, diff it against the freshly re-read persisted
// document, and retry the compare-and-swap write until it lands or the
// retry bound is exhausted.
package updater

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/router"
	"github.com/centosci/kaijs-bridge/store"
	"github.com/centosci/kaijs-bridge/validator"
)

// maxAttempts bounds the CAS retry loop per envelope.
const maxAttempts = 30

// Updater drives the validate → handle → CAS loop for single-document
// (non-bulk) backends.
type Updater struct {
	Validator  validator.Validator
	Router     *router.Router
	DocStore   store.DocStore
	Collection string
	Invalid    *store.InvalidStore
	Unknown    *store.UnknownTopicStore
}

// Process validates and routes msg, then either persists the resulting
// document, sidelines the message, or returns an error describing why
// neither happened.
//
// Sidelineable outcomes (INVALID, NO_HANDLER, NO_THREAD_ID) return nil: the
// caller should commit the envelope. An EXTERNAL_QUERY_FAILED error means the
// caller must roll back; every other error is fatal (UPDATE_EXHAUSTED,
// DOCSTORE_FATAL). Only CAS misses are retried here: a docstore error from
// the reread or from CASUpdate is returned at once as a DocstoreFatalError,
// with no distinction between transient and permanent failures.
func (u *Updater) Process(ctx context.Context, msg *model.FileQueueMessage) error {
	if err := u.Validator.Validate(ctx, msg.Body, msg.BrokerTopic); err != nil {
		return u.sidelineInvalid(ctx, msg, err.Error())
	}

	handler, err := u.Router.Resolve(msg.BrokerTopic)
	if err != nil {
		return u.sidelineUnknown(ctx, msg)
	}

	var lastType model.ArtifactType
	var lastAID string

	for attempt := 0; attempt < maxAttempts; attempt++ {
		proposal, err := handler.Handle(ctx, msg)
		if err != nil {
			var invalid bridgeerr.Invalid
			if errors.As(err, &invalid) {
				return u.sidelineInvalid(ctx, msg, err.Error())
			}
			return err
		}
		lastType, lastAID = proposal.Type, proposal.AID

		dbEntry, err := u.reread(ctx, proposal.Type, proposal.AID)
		if err != nil {
			return &bridgeerr.DocstoreFatalError{Op: "reread", Err: err}
		}

		updateSet := diff(proposal, dbEntry)
		if len(updateSet) == 0 {
			return nil
		}

		ok, err := u.DocStore.CASUpdate(ctx, u.Collection, dbEntry.ID, dbEntry.Version, updateSet)
		if err != nil {
			return &bridgeerr.DocstoreFatalError{Op: "CASUpdate", Err: err}
		}
		if ok {
			return nil
		}
		// CAS contention: a concurrent writer advanced _version between our
		// reread and our write. Retry: the next iteration's handler.Handle
		// call performs its own findOrCreate against the new state.
	}

	return &bridgeerr.UpdateExhaustedError{Type: string(lastType), AID: lastAID, Attempts: maxAttempts}
}

func (u *Updater) reread(ctx context.Context, artifactType model.ArtifactType, aid string) (*model.ArtifactModel, error) {
	key := map[string]interface{}{"type": string(artifactType), "aid": aid}
	doc, _, err := u.DocStore.FindOrCreateByKey(ctx, u.Collection, key, map[string]interface{}{
		"states":                []interface{}{},
		"current_state":         map[string]interface{}{},
		"current_state_lenghts": map[string]interface{}{},
		"resultsdb_testcase":    []interface{}{},
	})
	if err != nil {
		return nil, err
	}
	return decodeArtifactModel(doc)
}

func decodeArtifactModel(doc map[string]interface{}) (*model.ArtifactModel, error) {
	var out model.ArtifactModel
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &out})
	if err != nil {
		return nil, fmt.Errorf("updater: building decoder: %w", err)
	}
	if err := decoder.Decode(doc); err != nil {
		return nil, fmt.Errorf("updater: decoding document: %w", err)
	}
	return &out, nil
}

func (u *Updater) sidelineInvalid(ctx context.Context, msg *model.FileQueueMessage, reason string) error {
	if err := u.Invalid.Record(ctx, msg.Body, msg.BrokerTopic, reason); err != nil {
		return fmt.Errorf("updater: sidelining invalid message: %w", err)
	}
	return nil
}

func (u *Updater) sidelineUnknown(ctx context.Context, msg *model.FileQueueMessage) error {
	if err := u.Unknown.Record(ctx, msg.Body, msg.BrokerTopic); err != nil {
		return fmt.Errorf("updater: sidelining unrouted message: %w", err)
	}
	return nil
}

// diffField is one leaf path eligible to appear in an update_set.
type diffField struct {
	name  string
	get   func(*model.ArtifactModel) interface{}
	empty func(interface{}) bool
}

var diffFields = []diffField{
	{"rpm_build", func(m *model.ArtifactModel) interface{} { return m.RPMBuild }, mapEmpty},
	{"module_build", func(m *model.ArtifactModel) interface{} { return m.ModuleBuild }, mapEmpty},
	{"container_image", func(m *model.ArtifactModel) interface{} { return m.ContainerImage }, mapEmpty},
	{"states", func(m *model.ArtifactModel) interface{} { return m.States }, func(v interface{}) bool {
		s, _ := v.([]model.ArtifactState)
		return len(s) == 0
	}},
	{"current_state", func(m *model.ArtifactModel) interface{} { return m.CurrentState }, func(v interface{}) bool {
		s, _ := v.(map[string][]model.ArtifactState)
		return len(s) == 0
	}},
	{"current_state_lenghts", func(m *model.ArtifactModel) interface{} { return m.CurrentStateLenghts }, func(v interface{}) bool {
		s, _ := v.(map[string]int)
		return len(s) == 0
	}},
	{"resultsdb_testcase", func(m *model.ArtifactModel) interface{} { return m.ResultsDBTestcase }, func(v interface{}) bool {
		s, _ := v.([]string)
		return len(s) == 0
	}},
}

func mapEmpty(v interface{}) bool {
	m, _ := v.(map[string]interface{})
	return len(m) == 0
}

// diff computes update_set: leaf paths whose value in proposal differs from
// dbEntry. Arrays (states, resultsdb_testcase) are always written whole
// when non-empty. Paths empty in proposal are dropped — a handler that
// never touched a field must not clobber it. Paths unchanged from dbEntry
// are dropped.
func diff(proposal, dbEntry *model.ArtifactModel) map[string]interface{} {
	updateSet := make(map[string]interface{})
	for _, f := range diffFields {
		value := f.get(proposal)
		if f.empty(value) {
			continue
		}
		if reflect.DeepEqual(value, f.get(dbEntry)) {
			continue
		}
		updateSet[f.name] = value
	}
	return updateSet
}
