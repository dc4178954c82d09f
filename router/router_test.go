package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/model"
)

type stubHandler struct{ name string }

func (h *stubHandler) Handle(context.Context, *model.FileQueueMessage) (*model.ArtifactModel, error) {
	return &model.ArtifactModel{}, nil
}

func TestResolve_MostSpecificFirst(t *testing.T) {
	r := New()
	r.Register(`^org\.centos\.prod\.ci\.koji-build\.test\.(complete|queued|running|error)$`, &stubHandler{name: "koji-build-test"})
	r.Register(`^org\.(centos|fedoraproject)\.prod\.buildsys\.tag$`, &stubHandler{name: "tag"})

	h, err := r.Resolve("org.centos.prod.ci.koji-build.test.complete")
	require.NoError(t, err)
	assert.Equal(t, "koji-build-test", h.(*stubHandler).name)

	h, err = r.Resolve("org.fedoraproject.prod.buildsys.tag")
	require.NoError(t, err)
	assert.Equal(t, "tag", h.(*stubHandler).name)
}

func TestResolve_Unknown(t *testing.T) {
	r := New()
	r.Register(`^org\.centos\.prod\.buildsys\.tag$`, &stubHandler{})

	_, err := r.Resolve("org.centos.prod.ci.unknown.test.complete")
	var noHandler *bridgeerr.NoHandlerError
	assert.ErrorAs(t, err, &noHandler)
}

func TestMakeState_PipelineIDWins(t *testing.T) {
	msg := &model.FileQueueMessage{
		BrokerMsgID: "msg-1",
		BrokerTopic: "org.centos.prod.ci.koji-build.test.queued",
		Body: map[string]interface{}{
			"version":      "0.2.1",
			"pipeline":     map[string]interface{}{"id": "PIPE-1"},
			"generated_at": "2022-01-01T00:00:00Z",
			"test": map[string]interface{}{
				"namespace": "x", "type": "y", "category": "z",
			},
		},
	}

	st, err := MakeState(msg)
	require.NoError(t, err)
	assert.Equal(t, "PIPE-1", st.KaiState.ThreadID)
	assert.Equal(t, "test", st.KaiState.Stage)
	assert.Equal(t, "queued", st.KaiState.State)
	assert.Equal(t, "x.y.z", st.KaiState.TestCaseName)
	assert.EqualValues(t, 1640995200000, st.KaiState.Timestamp)
}

func TestMakeState_RunURLFallbackIsDeterministic(t *testing.T) {
	body := map[string]interface{}{
		"run": map[string]interface{}{"url": "https://ci.example/run/1"},
	}
	msg := &model.FileQueueMessage{BrokerTopic: "a.b.c", Body: body}

	st1, err := MakeState(msg)
	require.NoError(t, err)
	st2, err := MakeState(msg)
	require.NoError(t, err)
	assert.Equal(t, st1.KaiState.ThreadID, st2.KaiState.ThreadID)
	assert.True(t, len(st1.KaiState.ThreadID) > len("dummy-thread-"))
}

func TestMakeState_NoThreadIDRaises(t *testing.T) {
	msg := &model.FileQueueMessage{BrokerTopic: "a.b.c", Body: map[string]interface{}{}}
	_, err := MakeState(msg)

	var noThread *bridgeerr.NoThreadIDError
	assert.ErrorAs(t, err, &noThread)
}

func TestMakeState_MissingGeneratedAtYieldsNaN(t *testing.T) {
	msg := &model.FileQueueMessage{
		BrokerTopic: "a.b.c",
		Body:        map[string]interface{}{"pipeline": map[string]interface{}{"id": "PIPE-2"}},
	}
	st, err := MakeState(msg)
	require.NoError(t, err)
	assert.True(t, st.KaiState.Timestamp != st.KaiState.Timestamp, "expected NaN")
}
