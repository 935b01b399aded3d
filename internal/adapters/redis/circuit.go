package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pmsbridge/internal/domain"
)

// circuitTTL ages out circuits for vendors nobody calls anymore.
const circuitTTL = 24 * time.Hour

// CircuitStore keeps breaker state in redis so every running instance
// of the calling application shares one circuit per (vendor, class).
// Updates are optimistic compare-and-swap on the record version, done
// under WATCH so concurrent instances never lose a failure count.
type CircuitStore struct{ c *redis.Client }

func NewCircuitStore(addr, pass string, db int) *CircuitStore {
	return &CircuitStore{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

// NewCircuitStoreFromClient shares an existing client (tests).
func NewCircuitStoreFromClient(c *redis.Client) *CircuitStore {
	return &CircuitStore{c: c}
}

func circuitKey(vendor string, class domain.OpClass) string {
	return fmt.Sprintf("circuit:%s:%s", vendor, class)
}

func (s *CircuitStore) Get(ctx context.Context, vendor string, class domain.OpClass) (domain.CircuitRecord, error) {
	b, err := s.c.Get(ctx, circuitKey(vendor, class)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.CircuitRecord{}, nil // absent means CLOSED
	}
	if err != nil {
		return domain.CircuitRecord{}, err
	}
	var rec domain.CircuitRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return domain.CircuitRecord{}, err
	}
	return rec, nil
}

func (s *CircuitStore) Update(ctx context.Context, vendor string, class domain.OpClass, prev, next domain.CircuitRecord) (bool, error) {
	key := circuitKey(vendor, class)
	won := false
	err := s.c.Watch(ctx, func(tx *redis.Tx) error {
		var cur domain.CircuitRecord
		b, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// absent record, version 0
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(b, &cur); err != nil {
				return err
			}
		}
		if cur.Version != prev.Version {
			return nil // lost the race; not an error
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, circuitTTL)
			return nil
		})
		if err == nil {
			won = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil // someone wrote between WATCH and EXEC
	}
	return won, err
}

func (s *CircuitStore) Close() error { return s.c.Close() }

var _ domain.CircuitStore = (*CircuitStore)(nil)
