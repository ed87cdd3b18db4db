package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DiscoveryJob asks a collector to scan one player for new matches of one
// game mode.
type DiscoveryJob struct {
	MembershipID   string `json:"membershipId"`
	MembershipType int    `json:"membershipType"`
	Mode           int    `json:"mode"`
}

// ProcessingJob asks a processor to fetch and record one match for one
// character.
type ProcessingJob struct {
	MembershipID   string `json:"membershipId"`
	MembershipType int    `json:"membershipType"`
	CharacterID    string `json:"characterId"`
	Mode           int    `json:"mode"`
	MatchID        int64  `json:"match"`
}

func PutJSON(ctx context.Context, q *Queue, job any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.Put(ctx, payload)
}

func GetJSON[T any](ctx context.Context, q *Queue, timeout time.Duration) (*T, error) {
	payload, err := q.Get(ctx, true, timeout)
	if err != nil {
		return nil, err
	}

	var job T
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}
