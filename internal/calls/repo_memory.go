package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and early development.
// It mirrors the Postgres repo's merge semantics: overwrite for status, raw
// status and duration; first-write-only for provider SID, answered_at and
// ended_at; append-only logs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]*Call
	bySID map[string]string // provider sid -> call id
	logs  []LogEntry

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		calls: map[string]*Call{},
		bySID: map[string]string{},
		clock: time.Now,
	}
}

// SetClock overrides time stamping in tests.
func (r *MemoryRepo) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepo) Create(ctx context.Context, c Call, initLog LogEntry) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.AMDResult == "" {
		c.AMDResult = ResultUnknown
	}
	cp := c
	r.calls[c.ID] = &cp

	initLog.CallID = c.ID
	if initLog.CreatedAt.IsZero() {
		initLog.CreatedAt = now
	}
	r.logs = append(r.logs, initLog)
	return c, nil
}

func (r *MemoryRepo) AssignProviderSID(ctx context.Context, callID, sid string, status CallStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	if c.TwilioCallSID != "" {
		return ErrDuplicateSID
	}
	if _, taken := r.bySID[sid]; taken {
		return ErrDuplicateSID
	}
	c.TwilioCallSID = sid
	c.Status = status
	c.UpdatedAt = r.clock().UTC()
	r.bySID[sid] = callID
	return nil
}

func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return *c, nil
}

func (r *MemoryRepo) GetByProviderSID(ctx context.Context, sid string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[sid]
	if !ok {
		return Call{}, ErrNotFound
	}
	return *r.calls[id], nil
}

func (r *MemoryRepo) ApplyStatus(ctx context.Context, callID string, u StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.Status = u.Status
	c.TwilioStatus = u.RawStatus
	if u.DurationSeconds != nil {
		c.DurationSeconds = *u.DurationSeconds
	}
	if c.AnsweredAt == nil && u.AnsweredAt != nil {
		v := *u.AnsweredAt
		c.AnsweredAt = &v
	}
	if c.EndedAt == nil && u.EndedAt != nil {
		v := *u.EndedAt
		c.EndedAt = &v
	}
	c.UpdatedAt = r.clock().UTC()
	return nil
}

func (r *MemoryRepo) ApplyAMD(ctx context.Context, callID string, u AMDUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.calls[callID]
	if !ok {
		return ErrNotFound
	}
	c.AMDResult = u.Result
	conf := u.Confidence
	c.Confidence = &conf
	if u.DetectionLatencyMS != nil {
		v := *u.DetectionLatencyMS
		c.DetectionLatencyMS = &v
	} else {
		c.DetectionLatencyMS = nil
	}
	c.Metadata = u.Metadata
	c.UpdatedAt = r.clock().UTC()
	return nil
}

func (r *MemoryRepo) AppendLog(ctx context.Context, e LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock().UTC()
	}
	r.logs = append(r.logs, e)
	return nil
}

func (r *MemoryRepo) ListLogs(ctx context.Context, callID string) ([]LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []LogEntry
	for _, e := range r.logs {
		if e.CallID == callID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepo) List(ctx context.Context, f ListFilter) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if matches(*c, f) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepo) Summarize(ctx context.Context, f ListFilter) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := Summary{ByStatus: map[CallStatus]int{}, ByResult: map[AMDResult]int{}}
	for _, c := range r.calls {
		if !matches(*c, f) {
			continue
		}
		sum.TotalCalls++
		sum.ByStatus[c.Status]++
		sum.ByResult[c.AMDResult]++
		sum.TotalDurationSeconds += c.DurationSeconds
	}
	return sum, nil
}

func matches(c Call, f ListFilter) bool {
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Result != "" && c.AMDResult != f.Result {
		return false
	}
	if f.Strategy != "" && c.AMDStrategy != f.Strategy {
		return false
	}
	return true
}
