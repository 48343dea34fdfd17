/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Seednode/impostor/internal/game"
)

const maxUpdateRetries = 16

// Redis stores JSON snapshots in a shared Redis instance, so several
// server processes can see the same rooms.
type Redis struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
}

// NewRedis connects to the server at url (redis://...). Every call is bounded
// by timeout; ttl of zero keeps rooms forever.
func NewRedis(url, prefix string, ttl, timeout time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	return &Redis{
		client:  redis.NewClient(opts),
		prefix:  prefix,
		ttl:     ttl,
		timeout: timeout,
	}, nil
}

func (r *Redis) key(roomID string) string {
	return r.prefix + "room:" + roomID
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func decode(roomID string, data []byte, err error) (*game.Snapshot, error) {
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, unavailable(err)
	}

	snap := &game.Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, fmt.Errorf("%w: room %s: %w", ErrCorrupt, roomID, err)
	}
	return snap, nil
}

func (r *Redis) Get(ctx context.Context, roomID string) (*game.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(roomID)).Bytes()
	return decode(roomID, data, err)
}

func (r *Redis) Set(ctx context.Context, roomID string, snap *game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.key(roomID), data, r.ttl).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Update runs fn inside WATCH/MULTI and retries when another writer got
// there first.
func (r *Redis) Update(ctx context.Context, roomID string, fn UpdateFunc) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.key(roomID)

	var fnErr error
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		snap, err := decode(roomID, data, err)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		next, err := fn(snap)
		if err != nil {
			fnErr = err
			return err
		}
		if next == nil {
			return nil
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			fnErr = err
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, r.ttl)
			return nil
		})
		return err
	}

	for range maxUpdateRetries {
		fnErr = nil

		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrUnavailable), errors.Is(err, ErrCorrupt):
			return err
		default:
			return unavailable(err)
		}
	}

	return fmt.Errorf("%w: room %s still contended after %d attempts", ErrUnavailable, roomID, maxUpdateRetries)
}
