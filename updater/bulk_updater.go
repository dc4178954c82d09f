package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/fqueue"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/router"
	"github.com/centosci/kaijs-bridge/store"
	"github.com/centosci/kaijs-bridge/validator"
)

// BulkUpdater drives the validate → route → handle pipeline for the
// indexed-store (OpenSearch) variant. Instead of writing each envelope's
// result with its own CAS round trip, it hands the resulting document to a
// BulkAccumulator and lets the caller decide when to flush.
type BulkUpdater struct {
	Validator validator.Validator
	Router    *router.Router
	Invalid   *store.InvalidStore
	Unknown   *store.UnknownTopicStore
}

// Process validates and routes msg. If the message is sidelined (invalid,
// unrouted, or rejected by its handler as invalid), accumulated reports
// false and the caller must commit popped itself. Otherwise the resulting
// document is added to acc, which takes ownership of popped until the next
// flush commits or rolls it back, and accumulated reports true.
func (u *BulkUpdater) Process(ctx context.Context, msg *model.FileQueueMessage, popped *fqueue.Popped, acc *BulkAccumulator) (accumulated bool, err error) {
	if err := u.Validator.Validate(ctx, msg.Body, msg.BrokerTopic); err != nil {
		return false, u.sidelineInvalid(ctx, msg, err.Error())
	}

	handler, err := u.Router.Resolve(msg.BrokerTopic)
	if err != nil {
		return false, u.sidelineUnknown(ctx, msg)
	}

	proposal, err := handler.Handle(ctx, msg)
	if err != nil {
		var invalid bridgeerr.Invalid
		if errors.As(err, &invalid) {
			return false, u.sidelineInvalid(ctx, msg, err.Error())
		}
		return false, err
	}

	doc, err := artifactModelToDoc(proposal)
	if err != nil {
		return false, err
	}

	acc.Add(store.UpsertOp{
		Filter: map[string]interface{}{"type": string(proposal.Type), "aid": proposal.AID},
		Doc:    doc,
	}, popped)
	return true, nil
}

func artifactModelToDoc(m *model.ArtifactModel) (map[string]interface{}, error) {
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("updater: encoding artifact document: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("updater: decoding artifact document: %w", err)
	}
	return doc, nil
}

func (u *BulkUpdater) sidelineInvalid(ctx context.Context, msg *model.FileQueueMessage, reason string) error {
	if err := u.Invalid.Record(ctx, msg.Body, msg.BrokerTopic, reason); err != nil {
		return fmt.Errorf("updater: sidelining invalid message: %w", err)
	}
	return nil
}

func (u *BulkUpdater) sidelineUnknown(ctx context.Context, msg *model.FileQueueMessage) error {
	if err := u.Unknown.Record(ctx, msg.Body, msg.BrokerTopic); err != nil {
		return fmt.Errorf("updater: sidelining unrouted message: %w", err)
	}
	return nil
}
