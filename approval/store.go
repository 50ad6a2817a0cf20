package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/overseer/types"
)

// RequestStatus 审批请求的生命周期状态。
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusTimeout  RequestStatus = "timeout"
)

// Request is one suspension point awaiting a human decision.
type Request struct {
	Handle     string            `json:"handle"`
	ThreadID   string            `json:"thread_id"`
	Question   string            `json:"question"`
	Details    map[string]string `json:"details,omitempty"`
	Status     RequestStatus     `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Decision   *Decision         `json:"decision,omitempty"`
}

// Decision is the operator's answer to a suspended request.
type Decision struct {
	Approved  bool      `json:"approved"`
	Comment   string    `json:"comment,omitempty"`
	DecidedBy string    `json:"decided_by,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// RequestStore persists approval requests so pending work survives a
// process restart and decided history stays available for audit.
type RequestStore interface {
	Save(ctx context.Context, req *Request) error
	Get(ctx context.Context, handle string) (*Request, error)
	Update(ctx context.Context, req *Request) error
	// List returns requests filtered by status; empty status means all.
	// Results are ordered oldest first.
	List(ctx context.Context, status RequestStatus) ([]*Request, error)
}

// MemoryRequestStore is the in-process default.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

// NewMemoryRequestStore creates an empty in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*Request)}
}

func (s *MemoryRequestStore) Save(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *req
	s.requests[req.Handle] = &clone
	return nil
}

func (s *MemoryRequestStore) Get(ctx context.Context, handle string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[handle]
	if !ok {
		return nil, types.NewHandleNotFoundError(handle)
	}
	clone := *req
	return &clone, nil
}

func (s *MemoryRequestStore) Update(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.Handle]; !ok {
		return types.NewHandleNotFoundError(req.Handle)
	}
	clone := *req
	s.requests[req.Handle] = &clone
	return nil
}

func (s *MemoryRequestStore) List(ctx context.Context, status RequestStatus) ([]*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Request, 0, len(s.requests))
	for _, req := range s.requests {
		if status != "" && req.Status != status {
			continue
		}
		clone := *req
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// RedisRequestStore keeps requests in a Redis hash so a restarted process
// can list what was pending before the crash.
type RedisRequestStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRequestStore creates a Redis-backed request store.
func NewRedisRequestStore(client *redis.Client, prefix string) *RedisRequestStore {
	if prefix == "" {
		prefix = "overseer"
	}
	return &RedisRequestStore{client: client, prefix: prefix}
}

func (s *RedisRequestStore) key() string {
	return fmt.Sprintf("%s:approvals", s.prefix)
}

func (s *RedisRequestStore) Save(ctx context.Context, req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal approval request: %w", err)
	}
	if err := s.client.HSet(ctx, s.key(), req.Handle, data).Err(); err != nil {
		return fmt.Errorf("save approval request: %w", err)
	}
	return nil
}

func (s *RedisRequestStore) Get(ctx context.Context, handle string) (*Request, error) {
	data, err := s.client.HGet(ctx, s.key(), handle).Bytes()
	if err == redis.Nil {
		return nil, types.NewHandleNotFoundError(handle)
	}
	if err != nil {
		return nil, fmt.Errorf("load approval request: %w", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode approval request: %w", err)
	}
	return &req, nil
}

func (s *RedisRequestStore) Update(ctx context.Context, req *Request) error {
	exists, err := s.client.HExists(ctx, s.key(), req.Handle).Result()
	if err != nil {
		return fmt.Errorf("check approval request: %w", err)
	}
	if !exists {
		return types.NewHandleNotFoundError(req.Handle)
	}
	return s.Save(ctx, req)
}

func (s *RedisRequestStore) List(ctx context.Context, status RequestStatus) ([]*Request, error) {
	all, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	out := make([]*Request, 0, len(all))
	for _, raw := range all {
		var req Request
		if err := json.Unmarshal([]byte(raw), &req); err != nil {
			return nil, fmt.Errorf("decode approval request: %w", err)
		}
		if status != "" && req.Status != status {
			continue
		}
		clone := req
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
