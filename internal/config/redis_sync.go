package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisConfigKey     = "dnshelper:config:settings"
	redisConfigChannel = "dnshelper:config:updates"
	redisOpTimeout     = 5 * time.Second
	resubscribeDelay   = time.Second
)

// redisSync shares settings between instances: the latest document lives under
// redisConfigKey and every change is published on redisConfigChannel.
type redisSync struct {
	mu     sync.RWMutex
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

var settingsSync redisSync

// EnableRedisSynchronization adopts the settings stored in redis (or seeds redis
// with the local ones) and applies updates published by other instances until ctx ends.
func EnableRedisSynchronization(ctx context.Context, client *redis.Client) {
	if client == nil {
		log.Info("Settings synchronization disabled: no redis client")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	syncCtx, cancel := context.WithCancel(ctx)

	settingsSync.mu.Lock()
	if settingsSync.client != nil {
		settingsSync.mu.Unlock()
		cancel()
		return
	}
	settingsSync.client = client
	settingsSync.ctx = syncCtx
	settingsSync.cancel = cancel
	settingsSync.mu.Unlock()

	found, err := adoptRemoteConfig(syncCtx, client)
	if err != nil {
		log.Error("Settings sync: could not load settings from redis", "error", err)
	}
	if !found {
		if err := publishConfig(GetConfig()); err != nil {
			log.Error("Settings sync: could not seed redis with local settings", "error", err)
		}
	}

	go followConfigUpdates(syncCtx, client)
}

// DisableRedisSynchronization stops following remote updates.
func DisableRedisSynchronization() {
	settingsSync.mu.Lock()
	defer settingsSync.mu.Unlock()

	if settingsSync.cancel != nil {
		settingsSync.cancel()
	}
	settingsSync.client = nil
	settingsSync.ctx = nil
	settingsSync.cancel = nil
}

func adoptRemoteConfig(ctx context.Context, client *redis.Client) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	payload, err := client.Get(opCtx, redisConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	cfg, err := decodeRemoteConfig(payload)
	if err != nil {
		return true, err
	}
	return true, applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"})
}

func followConfigUpdates(ctx context.Context, client *redis.Client) {
	pubsub := client.Subscribe(ctx, redisConfigChannel)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			log.Error("Settings sync: subscription error", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
			continue
		}

		cfg, err := decodeRemoteConfig([]byte(msg.Payload))
		if err != nil {
			log.Error("Settings sync: ignoring published settings", "error", err)
			continue
		}
		if err := applyConfigUpdate(cfg, configUpdateOptions{persistToFile: true, source: "redis"}); err != nil {
			log.Error("Settings sync: failed to apply remote update", "error", err)
		}
	}
}

// decodeRemoteConfig layers a published document over the embedded defaults and validates it.
func decodeRemoteConfig(payload []byte) (Config, error) {
	var cfg Config
	_ = json.Unmarshal(defaultConfig, &cfg)
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func publishConfig(cfg Config) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return broadcastConfigUpdate(payload)
}

func broadcastConfigUpdate(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}

	settingsSync.mu.RLock()
	client := settingsSync.client
	baseCtx := settingsSync.ctx
	settingsSync.mu.RUnlock()

	if client == nil {
		return nil
	}
	if baseCtx == nil || baseCtx.Err() != nil {
		baseCtx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(baseCtx, redisOpTimeout)
	defer cancel()

	_, err := client.TxPipelined(opCtx, func(pipe redis.Pipeliner) error {
		pipe.Set(opCtx, redisConfigKey, payload, 0)
		pipe.Publish(opCtx, redisConfigChannel, payload)
		return nil
	})
	return err
}
