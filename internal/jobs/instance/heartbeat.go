package instance

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"dnshelper/internal/app/version"
)

const (
	KeyPrefix                = "dnshelper:instance:"
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultHeartbeatTTL      = 30 * time.Second
)

var instanceID = generateID()

func generateID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%d", hostname, os.Getpid(), time.Now().UnixNano())
}

// ID identifies this process among the instances sharing one redis.
func ID() string {
	return instanceID
}

// StartHeartbeat refreshes this instance's key every interval until ctx is done.
// The key stores the running build version and expires after ttl.
func StartHeartbeat(ctx context.Context, client *redis.Client, interval, ttl time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	key := KeyPrefix + instanceID

	beat := func() {
		if err := client.SetEx(ctx, key, version.BuildVersion(), ttl).Err(); err != nil && ctx.Err() == nil {
			log.Error("Failed to update instance heartbeat", "key", key, "error", err)
		}
	}

	beat()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// best effort, the ttl cleans up otherwise
			_ = client.Del(context.WithoutCancel(ctx), key).Err()
			return
		case <-ticker.C:
			beat()
		}
	}
}

func LaunchHeartbeat(parent context.Context, client *redis.Client) context.CancelFunc {
	ctx, cancel := context.WithCancel(parent)
	go StartHeartbeat(ctx, client, DefaultHeartbeatInterval, DefaultHeartbeatTTL)
	return cancel
}

// CountActive returns how many instances have a live heartbeat.
func CountActive(ctx context.Context, client *redis.Client) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	count := 0
	iter := client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}
