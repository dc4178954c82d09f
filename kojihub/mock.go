package kojihub

import (
	"context"
	"fmt"
)

// MockClient is a hand-written mock Client for tests, mirroring the
// broker package's MockDialer shape: canned responses plus call
// tracking, no mocking framework.
type MockClient struct {
	Builds map[int64]*Build
	Err    error
	Calls  []int64
}

// GetBuild returns the canned Build for buildID, or Err if set.
func (m *MockClient) GetBuild(_ context.Context, buildID int64) (*Build, error) {
	m.Calls = append(m.Calls, buildID)
	if m.Err != nil {
		return nil, m.Err
	}
	build, ok := m.Builds[buildID]
	if !ok {
		return nil, fmt.Errorf("kojihub: mock has no build registered for id %d", buildID)
	}
	return build, nil
}
