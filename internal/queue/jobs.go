package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// ExpireArtifactTask removes a published artifact once its retention ends.
	ExpireArtifactTask = "artifact:expire"
)

// ExpirePayload names the object the worker deletes.
type ExpirePayload struct {
	ObjectKey string `json:"object_key"`
}

// NewExpireTask builds the delayed deletion task for objectKey.
func NewExpireTask(objectKey string) (*asynq.Task, error) {
	data, err := json.Marshal(ExpirePayload{ObjectKey: objectKey})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ExpireArtifactTask, data), nil
}

// ExpireTaskID is the asynq task ID for objectKey. One pending expiry exists
// per key at any time.
func ExpireTaskID(objectKey string) string {
	return "expire:" + objectKey
}
