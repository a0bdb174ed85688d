package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a nil repository is provided
	ErrRepositoryNil = errors.New("repository cannot be nil")

	// ErrResumerNil is returned when a worker is created without a resumer
	ErrResumerNil = errors.New("resumer cannot be nil")

	// ErrInvalidEnvelope is returned when an envelope misses its identity or ids
	ErrInvalidEnvelope = errors.New("envelope must carry entity identity, action, process and tr_id")

	// ErrNoTaskToClaim is returned when no task is available for claiming
	ErrNoTaskToClaim = errors.New("no task available to claim")

	// ErrTaskNotFound is returned when a task id is unknown to the storage
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskNotProcessing is returned when completing or failing a task that was not claimed
	ErrTaskNotProcessing = errors.New("task is not in processing state")

	// ErrTaskExists is returned when creating a task with a duplicate id
	ErrTaskExists = errors.New("task already exists")

	// ErrWorkerStarted is returned when starting a running worker
	ErrWorkerStarted = errors.New("worker already started")

	// ErrWorkerNotStarted is returned when stopping a worker that is not running
	ErrWorkerNotStarted = errors.New("worker not started")
)
