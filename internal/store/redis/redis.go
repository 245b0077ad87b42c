package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"github.com/lgmbx/DataProcessingOrchestrator/internal/store"
	"github.com/lgmbx/DataProcessingOrchestrator/pkg/api"
)

type (
	// Config holds the connection settings of a Redis-backed store
	Config struct {
		Addr     string
		Password string
		Prefix   string
		DB       int
	}

	// Store is a store.Store persisted in Redis. Each instance is a JSON
	// document under its own key, and a set per status indexes instance ids
	// for recovery and archiving. Writes use WATCH/MULTI so a commit only
	// lands if nothing touched the instance since it was read
	Store struct {
		client *goredis.Client
		prefix string
		owned  bool
	}
)

const (
	instanceSegment = "instance"
	statusSegment   = "status"
)

var _ store.Store = (*Store)(nil)

// ErrConnect is returned when the Redis server cannot be reached
var ErrConnect = errors.New("failed to connect to redis")

// New connects to Redis using cfg and verifies the connection
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	s := NewWithClient(client, cfg.Prefix)
	s.owned = true
	return s, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of
// the client and Close will not close it
func NewWithClient(client *goredis.Client, prefix string) *Store {
	return &Store{
		client: client,
		prefix: prefix,
	}
}

func (s *Store) Create(ctx context.Context, inst *api.Instance) error {
	if err := store.CheckCreate(inst); err != nil {
		return err
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	key := s.instanceKey(inst.ID)
	txf := func(tx *goredis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", store.ErrInstanceExists, inst.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.statusKey(inst.Status), string(inst.ID))
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: %s", store.ErrInstanceExists, inst.ID)
	}
	return err
}

func (s *Store) Load(
	ctx context.Context, id api.InstanceID,
) (*api.Instance, error) {
	raw, err := s.client.Get(ctx, s.instanceKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var inst api.Instance
	if err := json.Unmarshal(raw, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *Store) Commit(
	ctx context.Context, expect int, inst *api.Instance,
) error {
	if inst == nil {
		return store.ErrInvalidCommit
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}

	key := s.instanceKey(inst.ID)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: %s", store.ErrInstanceNotFound, inst.ID)
		}
		if err != nil {
			return err
		}

		res := gjson.GetManyBytes(raw, "status", "cursor")
		stored := api.Status(res[0].String())
		cursor := int(res[1].Int())
		if err := store.CheckCommit(stored, cursor, expect, inst); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if stored != inst.Status {
				pipe.SRem(ctx, s.statusKey(stored), string(inst.ID))
				pipe.SAdd(ctx, s.statusKey(inst.Status), string(inst.ID))
			}
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: %s", store.ErrConcurrentModification, inst.ID)
	}
	return err
}

func (s *Store) List(
	ctx context.Context, status api.Status,
) ([]api.InstanceID, error) {
	members, err := s.client.SMembers(ctx, s.statusKey(status)).Result()
	if err != nil {
		return nil, err
	}

	res := make([]api.InstanceID, 0, len(members))
	for _, m := range members {
		res = append(res, api.InstanceID(m))
	}
	slices.Sort(res)
	return res, nil
}

func (s *Store) Delete(ctx context.Context, id api.InstanceID) error {
	key := s.instanceKey(id)
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return fmt.Errorf("%w: %s", store.ErrInstanceNotFound, id)
		}
		if err != nil {
			return err
		}

		stored := api.Status(gjson.GetBytes(raw, "status").String())
		if !stored.IsTerminal() {
			return fmt.Errorf("%w: %s", store.ErrInstanceRunning, id)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.statusKey(stored), string(id))
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, key)
	if errors.Is(err, goredis.TxFailedErr) {
		return fmt.Errorf("%w: %s", store.ErrConcurrentModification, id)
	}
	return err
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) instanceKey(id api.InstanceID) string {
	return s.prefix + ":" + instanceSegment + ":" + string(id)
}

func (s *Store) statusKey(status api.Status) string {
	return s.prefix + ":" + statusSegment + ":" + string(status)
}
