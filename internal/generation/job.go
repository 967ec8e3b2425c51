package generation

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const jobKeyPrefix = "generation:job:"

// Job statuses. A job reaches a terminal status (completed, failed,
// timed_out) exactly once.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobTimedOut  = "timed_out"
)

// Job tracks one generation attempt tied to a reservation.
type Job struct {
	ID            string
	ReservationID string
	ModelUsed     string
	PaymentRef    string
	Status        string
	ResultRef     string
	CreatedAt     int64
	UpdatedAt     int64
}

func jobKey(id string) string { return jobKeyPrefix + id }

func SaveJob(ctx context.Context, rdb *redis.Client, j *Job) error {
	return rdb.HSet(ctx, jobKey(j.ID),
		"id", j.ID,
		"reservation_id", j.ReservationID,
		"model_used", j.ModelUsed,
		"payment_ref", j.PaymentRef,
		"status", j.Status,
		"result_ref", j.ResultRef,
		"created_at", j.CreatedAt,
		"updated_at", j.UpdatedAt,
	).Err()
}

func GetJob(ctx context.Context, rdb *redis.Client, id string) (*Job, error) {
	vals, err := rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	createdAt, _ := strconv.ParseInt(vals["created_at"], 10, 64)
	updatedAt, _ := strconv.ParseInt(vals["updated_at"], 10, 64)
	return &Job{
		ID:            vals["id"],
		ReservationID: vals["reservation_id"],
		ModelUsed:     vals["model_used"],
		PaymentRef:    vals["payment_ref"],
		Status:        vals["status"],
		ResultRef:     vals["result_ref"],
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}
