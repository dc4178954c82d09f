package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputSplitter_RoutesByLevel(t *testing.T) {
	splitter := &OutputSplitter{}

	tests := []struct {
		name    string
		message []byte
	}{
		{"ErrorLevel", []byte(`time="2024-01-15T10:30:00Z" level=error msg="docstore connection lost"`)},
		{"InfoLevel", []byte(`time="2024-01-15T10:30:00Z" level=info msg="loader started"`)},
		{"WarnLevel", []byte(`time="2024-01-15T10:30:00Z" level=warning msg="cas contention, retrying"`)},
		{"ErrorSubstringOnly", []byte(`time="2024-01-15T10:30:00Z" level=info msg="no error occurred"`)},
		{"Empty", []byte(``)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := splitter.Write(tt.message)
			assert.NoError(t, err)
			assert.Equal(t, len(tt.message), n)
		})
	}
}

func TestOutputSplitter_PatternMatch(t *testing.T) {
	assert.True(t, bytes.Contains([]byte("prefix level=error suffix"), []byte("level=error")))
	assert.False(t, bytes.Contains([]byte("LEVEL=ERROR"), []byte("level=error")))
}

func TestContextLogger_WithFieldDoesNotMutateParent(t *testing.T) {
	base := NewContext(New(DefaultConfig()), map[string]interface{}{"component": "fqueue"})
	child := base.WithField("fq_msg_id", "0001.abc")

	assert.NotSame(t, base, child)
	assert.Equal(t, "fqueue", base.fields["component"])
	_, baseHasMsgID := base.fields["fq_msg_id"]
	assert.False(t, baseHasMsgID)
	assert.Equal(t, "0001.abc", child.fields["fq_msg_id"])
}

func TestComponent_SetsComponentAndVersion(t *testing.T) {
	cl := Component("updater", "1.2.3")
	assert.Equal(t, "updater", cl.fields["component"])
	assert.Equal(t, "1.2.3", cl.fields["version"])
}
