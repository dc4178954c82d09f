package handlers

import (
	"context"
	"strconv"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/router"
)

// CIStateHandler handles CI lifecycle events for one artifact family
// (org.centos.prod.ci.<family>.test.{queued,running,complete,error}).
// Identity comes straight from the event body's artifact object; no hub
// query is needed since the publisher already knows the artifact id.
type CIStateHandler struct {
	Deps Deps
	Type model.ArtifactType
}

// Handle finds or creates the document named by body.artifact.id, then
// appends the synthesized ArtifactState and refreshes derived fields.
func (h *CIStateHandler) Handle(ctx context.Context, msg *model.FileQueueMessage) (*model.ArtifactModel, error) {
	artifactObj := objectAt(msg.Body, "artifact")
	aid := artifactIDFrom(artifactObj)
	if aid == "" {
		return nil, &bridgeerr.InvalidError{BrokerTopic: msg.BrokerTopic, Reason: "missing artifact.id"}
	}

	artifact, err := findOrCreate(ctx, h.Deps, h.Type, aid)
	if err != nil {
		return nil, err
	}

	state, err := router.MakeState(msg)
	if err != nil {
		return nil, err
	}

	if artifact.AppendState(*state) {
		artifact.RefreshDerived()
	}

	return artifact, nil
}

func artifactIDFrom(artifactObj map[string]interface{}) string {
	if artifactObj == nil {
		return ""
	}
	if s := stringAt(artifactObj, "id"); s != "" {
		return s
	}
	if f, ok := floatAt(artifactObj, "id"); ok {
		return strconv.FormatInt(int64(f), 10)
	}
	return ""
}
