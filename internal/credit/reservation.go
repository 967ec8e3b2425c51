package credit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pixelmint/credit-engine/internal/chain"
)

const reservationKeyPrefix = "credit:reservation:"

// Reservation statuses. A reservation leaves StatusReserved exactly once.
// StatusRefunding is a transient claim held by the compensation handler while
// the ledger credit-back is in flight; it reverts to StatusReserved if that
// write fails.
const (
	StatusReserved  = "reserved"
	StatusRefunding = "refunding"
	StatusSettled   = "settled"
	StatusRefunded  = "refunded"
)

// Reservation records one credit debit made ahead of a generation attempt.
// It must end settled or refunded; it is never re-spent or double-refunded.
type Reservation struct {
	ID        string
	User      string // hex address
	Credits   int64
	Source    chain.Source
	Status    string
	Tag       string // generation-type tag sent with the ledger debit
	CreatedAt int64
}

func reservationKey(id string) string { return reservationKeyPrefix + id }

func SaveReservation(ctx context.Context, rdb *redis.Client, r *Reservation) error {
	return rdb.HSet(ctx, reservationKey(r.ID),
		"id", r.ID,
		"user", r.User,
		"credits", r.Credits,
		"source", r.Source.String(),
		"status", r.Status,
		"tag", r.Tag,
		"created_at", r.CreatedAt,
	).Err()
}

func GetReservation(ctx context.Context, rdb *redis.Client, id string) (*Reservation, error) {
	vals, err := rdb.HGetAll(ctx, reservationKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return reservationFromMap(vals)
}

// transitionScript compare-and-sets the status field so that concurrent
// callers cannot both move a reservation out of the same state.
var transitionScript = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "status")
if cur == ARGV[1] then
  redis.call("HSET", KEYS[1], "status", ARGV[2])
  return 1
end
return 0
`)

// TransitionStatus atomically moves a reservation from one status to another.
// It returns false when the reservation is missing or not in the expected
// status; callers treat that as "someone else already resolved it".
func TransitionStatus(ctx context.Context, rdb *redis.Client, id, from, to string) (bool, error) {
	n, err := transitionScript.Run(ctx, rdb, []string{reservationKey(id)}, from, to).Int()
	if err != nil {
		return false, fmt.Errorf("transition reservation %s: %w", id, err)
	}
	return n == 1, nil
}

// ScanReservations returns all reservations currently in the given status.
// Used for crash recovery of the transient refunding state.
func ScanReservations(ctx context.Context, rdb *redis.Client, status string) ([]Reservation, error) {
	var out []Reservation
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, reservationKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan reservations: %w", err)
		}
		for _, key := range keys {
			vals, err := rdb.HGetAll(ctx, key).Result()
			if err != nil || len(vals) == 0 {
				continue
			}
			if vals["status"] != status {
				continue
			}
			r, err := reservationFromMap(vals)
			if err != nil {
				continue
			}
			out = append(out, *r)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

func reservationFromMap(m map[string]string) (*Reservation, error) {
	src, err := chain.ParseSource(m["source"])
	if err != nil {
		return nil, fmt.Errorf("reservation %s: %w", m["id"], err)
	}
	credits, _ := strconv.ParseInt(m["credits"], 10, 64)
	createdAt, _ := strconv.ParseInt(m["created_at"], 10, 64)
	return &Reservation{
		ID:        m["id"],
		User:      m["user"],
		Credits:   credits,
		Source:    src,
		Status:    m["status"],
		Tag:       m["tag"],
		CreatedAt: createdAt,
	}, nil
}
