package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInto_AssignsMissingKey(t *testing.T) {
	dst := map[string]interface{}{}
	out := Into(dst, map[string]interface{}{"nvr": "gcompris-qt-1.1-1.fc33"})
	assert.Equal(t, "gcompris-qt-1.1-1.fc33", out["nvr"])
}

func TestInto_EmptyStringKeepsDestination(t *testing.T) {
	dst := map[string]interface{}{"source": "git+https://example"}
	out := Into(dst, map[string]interface{}{"source": ""})
	assert.Equal(t, "git+https://example", out["source"])
}

func TestInto_EmptyArrayKeepsDestination(t *testing.T) {
	dst := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	out := Into(dst, map[string]interface{}{"tags": []interface{}{}})
	assert.Equal(t, []interface{}{"a", "b"}, out["tags"])
}

func TestInto_NonEmptyArrayOverwrites(t *testing.T) {
	dst := map[string]interface{}{"tags": []interface{}{"a"}}
	out := Into(dst, map[string]interface{}{"tags": []interface{}{"b", "c"}})
	assert.Equal(t, []interface{}{"b", "c"}, out["tags"])
}

func TestInto_RecursesIntoNestedObjects(t *testing.T) {
	dst := map[string]interface{}{
		"extra": map[string]interface{}{"source": map[string]interface{}{"original_url": "git+a"}},
	}
	src := map[string]interface{}{
		"extra": map[string]interface{}{"source": map[string]interface{}{"scm_url": "git+b"}},
	}
	out := Into(dst, src)
	nested := out["extra"].(map[string]interface{})["source"].(map[string]interface{})
	assert.Equal(t, "git+a", nested["original_url"])
	assert.Equal(t, "git+b", nested["scm_url"])
}

func TestInto_ScalarOverwrites(t *testing.T) {
	dst := map[string]interface{}{"scratch": false}
	out := Into(dst, map[string]interface{}{"scratch": true})
	assert.Equal(t, true, out["scratch"])
}
