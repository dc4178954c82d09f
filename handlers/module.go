package handlers

import (
	"context"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/merge"
	"github.com/centosci/kaijs-bridge/model"
)

// ModuleTagHandler handles module-build tag events. Unlike BuildTagHandler,
// no hub query is needed: the publisher already names the module by its
// nsvc (name:stream:version:context), which is identity enough.
type ModuleTagHandler struct {
	Deps Deps
}

// Handle folds the event's module fields into a module_build partial
// record, keyed by nsvc rather than a Koji task id.
func (h *ModuleTagHandler) Handle(ctx context.Context, msg *model.FileQueueMessage) (*model.ArtifactModel, error) {
	nsvc := stringAt(msg.Body, "nsvc")
	if nsvc == "" {
		return nil, &bridgeerr.InvalidError{BrokerTopic: msg.BrokerTopic, Reason: "missing nsvc"}
	}

	artifact, err := findOrCreate(ctx, h.Deps, model.TypeRedHatModule, nsvc)
	if err != nil {
		return nil, err
	}

	partial := map[string]interface{}{
		"nsvc":    nsvc,
		"name":    stringAt(msg.Body, "name"),
		"stream":  stringAt(msg.Body, "stream"),
		"version": stringAt(msg.Body, "version"),
		"context": stringAt(msg.Body, "context"),
		"owner":   stringAt(msg.Body, "owner"),
	}

	record := artifact.RecordFor("module_build")
	*record = merge.Into(*record, partial)

	return artifact, nil
}
