package router

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"time"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/model"
)

// MakeState synthesizes a KaiState and wrapping ArtifactState from one
// envelope. thread_id follows the fallback rule: body.pipeline.id if it is
// a non-empty string, else "dummy-thread-" + sha256_hex(body.run.url). If
// neither is available, MakeState fails with NoThreadIDError.
func MakeState(msg *model.FileQueueMessage) (*model.ArtifactState, error) {
	threadID, ok := threadIDFor(msg.Body)
	if !ok {
		return nil, &bridgeerr.NoThreadIDError{BrokerTopic: msg.BrokerTopic}
	}

	stage, state := splitTopic(msg.BrokerTopic)

	kaiState := model.KaiState{
		ThreadID:     threadID,
		MsgID:        msg.BrokerMsgID,
		Version:      stringAt(msg.Body, "version"),
		Stage:        stage,
		State:        state,
		Timestamp:    timestampFrom(msg.Body),
		Origin:       model.DefaultOrigin(),
		TestCaseName: testCaseNameFrom(msg.Body),
	}

	return &model.ArtifactState{
		BrokerMsgBody: msg.Body,
		KaiState:      kaiState,
	}, nil
}

func threadIDFor(body map[string]interface{}) (string, bool) {
	if pipelineID := stringAtPath(body, "pipeline", "id"); pipelineID != "" {
		return pipelineID, true
	}
	if runURL := stringAtPath(body, "run", "url"); runURL != "" {
		sum := sha256.Sum256([]byte(runURL))
		return "dummy-thread-" + hex.EncodeToString(sum[:]), true
	}
	return "", false
}

// splitTopic returns the second-to-last ("stage") and last ("state")
// dot-delimited segments of topic.
func splitTopic(topic string) (stage, state string) {
	parts := strings.Split(topic, ".")
	if len(parts) == 0 {
		return "", ""
	}
	state = parts[len(parts)-1]
	if len(parts) >= 2 {
		stage = parts[len(parts)-2]
	}
	return stage, state
}

func timestampFrom(body map[string]interface{}) float64 {
	raw := stringAt(body, "generated_at")
	if raw == "" {
		return math.NaN()
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return math.NaN()
	}
	return float64(t.UnixMilli())
}

func testCaseNameFrom(body map[string]interface{}) string {
	namespace := stringAtPath(body, "test", "namespace")
	typ := stringAtPath(body, "test", "type")
	category := stringAtPath(body, "test", "category")
	if namespace == "" || typ == "" || category == "" {
		return ""
	}
	return namespace + "." + typ + "." + category
}

func stringAt(body map[string]interface{}, key string) string {
	v, ok := body[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func stringAtPath(body map[string]interface{}, key, nested string) string {
	v, ok := body[key]
	if !ok {
		return ""
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return ""
	}
	return stringAt(obj, nested)
}
