// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"signalcraft-go/internal/config"
)

// prefixEscalation keys pending escalation job IDs by alert group.
const prefixEscalation = "escalation:"

// EscalationIndex implements store.EscalationIndex using Redis. The index is
// durable so a handled group can cancel its pending escalation even after a
// process restart.
type EscalationIndex struct {
	client *redis.Client
}

// NewEscalationIndex creates a new Redis-backed escalation index.
func NewEscalationIndex(cfg *config.RedisConfig) (*EscalationIndex, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &EscalationIndex{client: client}, nil
}

// NewEscalationIndexWithClient wraps an existing client, letting the index
// share a connection with the Redis job queue.
func NewEscalationIndexWithClient(client *redis.Client) *EscalationIndex {
	return &EscalationIndex{client: client}
}

func escalationKey(workspaceID, groupID string) string {
	return fmt.Sprintf("%s%s:%s", prefixEscalation, workspaceID, groupID)
}

// Set records the pending escalation job for a group.
func (i *EscalationIndex) Set(ctx context.Context, workspaceID, groupID, jobID string) error {
	if err := i.client.Set(ctx, escalationKey(workspaceID, groupID), jobID, 0).Err(); err != nil {
		return fmt.Errorf("failed to set escalation entry: %w", err)
	}
	return nil
}

// Get returns the pending job ID for a group, or empty string when none.
func (i *EscalationIndex) Get(ctx context.Context, workspaceID, groupID string) (string, error) {
	jobID, err := i.client.Get(ctx, escalationKey(workspaceID, groupID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get escalation entry: %w", err)
	}
	return jobID, nil
}

// Delete removes the entry for a group.
func (i *EscalationIndex) Delete(ctx context.Context, workspaceID, groupID string) error {
	if err := i.client.Del(ctx, escalationKey(workspaceID, groupID)).Err(); err != nil {
		return fmt.Errorf("failed to delete escalation entry: %w", err)
	}
	return nil
}

// ListGroups returns the group IDs with a pending entry in the workspace.
func (i *EscalationIndex) ListGroups(ctx context.Context, workspaceID string) ([]string, error) {
	prefix := prefixEscalation + workspaceID + ":"

	var (
		groupIDs []string
		cursor   uint64
	)
	for {
		keys, next, err := i.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation entries: %w", err)
		}
		for _, key := range keys {
			groupIDs = append(groupIDs, strings.TrimPrefix(key, prefix))
		}
		cursor = next
		if cursor == 0 {
			return groupIDs, nil
		}
	}
}

// Close closes the Redis client connection.
func (i *EscalationIndex) Close() error {
	if i.client != nil {
		return i.client.Close()
	}
	return nil
}
