package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centosci/kaijs-bridge/kojihub"
	"github.com/centosci/kaijs-bridge/model"
	"github.com/centosci/kaijs-bridge/store"
)

func TestBuildTagHandler_FirstTagEventSeedsRPMBuild(t *testing.T) {
	hub := &kojihub.MockClient{Builds: map[int64]*kojihub.Build{
		1728223: {
			TaskID: 42,
			NVR:    "gcompris-qt-1.1-1.fc33",
			Name:   "gcompris-qt",
			Extra: map[string]interface{}{
				"source": map[string]interface{}{"original_url": "git+https://example.test/gcompris-qt"},
			},
		},
	}}

	deps := Deps{
		DocStore:   store.NewMockDocStore(),
		Collection: "artifacts",
		Hubs:       kojihub.HubForType{string(model.TypeKojiBuild): hub},
	}
	h := &BuildTagHandler{Deps: deps, TypeForTopic: tagTopicType}

	msg := &model.FileQueueMessage{
		BrokerTopic: "org.fedoraproject.prod.buildsys.tag",
		Body: map[string]interface{}{
			"build_id": float64(1728223),
			"owner":    "musuruan",
		},
	}

	artifact, err := h.Handle(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, model.TypeKojiBuild, artifact.Type)
	assert.Equal(t, "42", artifact.AID)
	assert.Equal(t, int64(42), artifact.RPMBuild["task_id"])
	assert.Equal(t, int64(1728223), artifact.RPMBuild["build_id"])
	assert.Equal(t, "gcompris-qt-1.1-1.fc33", artifact.RPMBuild["nvr"])
	assert.Equal(t, "musuruan", artifact.RPMBuild["issuer"])
	assert.Equal(t, "git+https://example.test/gcompris-qt", artifact.RPMBuild["source"])
	assert.Equal(t, false, artifact.RPMBuild["scratch"])
	assert.Equal(t, "gcompris-qt", artifact.RPMBuild["component"])
	assert.Empty(t, artifact.States)
	assert.Len(t, hub.Calls, 1)
}

func TestBuildTagHandler_HubErrorWrapsExternalQueryError(t *testing.T) {
	hub := &kojihub.MockClient{Err: assert.AnError}
	deps := Deps{
		DocStore:   store.NewMockDocStore(),
		Collection: "artifacts",
		Hubs:       kojihub.HubForType{string(model.TypeBrewBuild): hub},
	}
	h := &BuildTagHandler{Deps: deps, TypeForTopic: tagTopicType}

	msg := &model.FileQueueMessage{
		BrokerTopic: "org.centos.prod.buildsys.tag",
		Body:        map[string]interface{}{"build_id": float64(1), "owner": "x"},
	}

	_, err := h.Handle(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external query")
}
