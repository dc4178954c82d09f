package handlers

import (
	"context"
	"strconv"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/merge"
	"github.com/centosci/kaijs-bridge/model"
)

// BuildTagHandler handles org.{centos,fedoraproject}.prod.buildsys.tag
// events: the artifact identity (task_id) is not in the event body itself,
// it must be resolved by querying the hub for build_id.
type BuildTagHandler struct {
	Deps Deps
	// TypeForTopic maps the triggering topic to an artifact type, since the
	// same tag pattern covers both community (koji-build) and internal
	// (brew-build) hubs.
	TypeForTopic func(topic string) model.ArtifactType
}

// Handle resolves build_id against the hub registered for the artifact type,
// then folds the resulting build info into an rpm_build partial record.
func (h *BuildTagHandler) Handle(ctx context.Context, msg *model.FileQueueMessage) (*model.ArtifactModel, error) {
	artifactType := h.TypeForTopic(msg.BrokerTopic)

	buildIDf, ok := floatAt(msg.Body, "build_id")
	if !ok {
		return nil, &bridgeerr.InvalidError{BrokerTopic: msg.BrokerTopic, Reason: "missing build_id"}
	}
	buildID := int64(buildIDf)

	hub, ok := h.Deps.Hubs.Resolve(string(artifactType))
	if !ok {
		return nil, &bridgeerr.InvalidError{BrokerTopic: msg.BrokerTopic, Reason: "no hub configured for type " + string(artifactType)}
	}

	build, err := hub.GetBuild(ctx, buildID)
	if err != nil {
		return nil, &bridgeerr.ExternalQueryError{Collaborator: "kojihub", Err: err}
	}

	aid := strconv.FormatInt(build.TaskID, 10)
	artifact, err := findOrCreate(ctx, h.Deps, artifactType, aid)
	if err != nil {
		return nil, err
	}

	partial := map[string]interface{}{
		"task_id":   build.TaskID,
		"build_id":  buildID,
		"nvr":       build.NVR,
		"issuer":    stringAt(msg.Body, "owner"),
		"source":    sourceURLFrom(build.Extra),
		"scratch":   boolAt(msg.Body, "scratch"),
		"component": build.Name,
	}

	field, _ := model.RecordFieldFor(artifactType)
	record := artifact.RecordFor(field)
	*record = merge.Into(*record, partial)

	return artifact, nil
}

func sourceURLFrom(extra map[string]interface{}) string {
	source := objectAt(extra, "source")
	if source == nil {
		return ""
	}
	return stringAt(source, "original_url")
}
