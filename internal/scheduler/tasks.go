package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskFeedRowChanged = "feed.row_changed"

const TaskFullSweep = "sweep.full"

const TaskReservationSync = "sweep.reservations"

type FeedRowChangedPayload struct {
	LicensePlate string `json:"licensePlate"`
}

type FullSweepPayload struct {
	RequestedBy string `json:"requestedBy"`
}

type ReservationSyncPayload struct {
	RequestedBy string `json:"requestedBy"`
}

func NewFeedRowChangedTask(payload FeedRowChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFeedRowChanged, data), nil
}

func ParseFeedRowChangedPayload(task *asynq.Task) (FeedRowChangedPayload, error) {
	var payload FeedRowChangedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FeedRowChangedPayload{}, err
	}
	return payload, nil
}

func NewFullSweepTask(payload FullSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFullSweep, data), nil
}

func ParseFullSweepPayload(task *asynq.Task) (FullSweepPayload, error) {
	var payload FullSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return FullSweepPayload{}, err
	}
	return payload, nil
}

func NewReservationSyncTask(payload ReservationSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSync, data), nil
}

func ParseReservationSyncPayload(task *asynq.Task) (ReservationSyncPayload, error) {
	var payload ReservationSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ReservationSyncPayload{}, err
	}
	return payload, nil
}
