package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskReconcileInbox = "inbox.reconcile"

const (
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

type ReconcileInboxPayload struct {
	Trigger     string `json:"trigger"`
	RequestedBy string `json:"requestedBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func NewReconcileInboxTask(payload ReconcileInboxPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileInbox, data), nil
}

func ParseReconcileInboxPayload(task *asynq.Task) (ReconcileInboxPayload, error) {
	var payload ReconcileInboxPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReconcileInboxPayload{}, err
	}
	return payload, nil
}
