package kojihub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClient_GetBuild_ReturnsCanned(t *testing.T) {
	mock := &MockClient{Builds: map[int64]*Build{
		1728223: {TaskID: 42, NVR: "gcompris-qt-1.1-1.fc33", Name: "gcompris-qt"},
	}}

	build, err := mock.GetBuild(context.Background(), 1728223)
	require.NoError(t, err)
	assert.EqualValues(t, 42, build.TaskID)
	assert.Equal(t, []int64{1728223}, mock.Calls)
}

func TestMockClient_GetBuild_MissingID(t *testing.T) {
	mock := &MockClient{Builds: map[int64]*Build{}}
	_, err := mock.GetBuild(context.Background(), 99)
	assert.Error(t, err)
}

func TestMockClient_GetBuild_PropagatesErr(t *testing.T) {
	wantErr := errors.New("hub unreachable")
	mock := &MockClient{Err: wantErr}
	_, err := mock.GetBuild(context.Background(), 1)
	assert.ErrorIs(t, err, wantErr)
}

func TestHubForType_Resolve(t *testing.T) {
	hubs := HubForType{"koji-build": &MockClient{}}
	client, ok := hubs.Resolve("koji-build")
	assert.True(t, ok)
	assert.NotNil(t, client)

	_, ok = hubs.Resolve("unknown")
	assert.False(t, ok)
}
