package jobs

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bsc-custody.backend/internal/domain/entities"
	domainerrors "bsc-custody.backend/internal/domain/errors"
	"bsc-custody.backend/internal/usecases"
	"bsc-custody.backend/pkg/logger"
	"bsc-custody.backend/pkg/metrics"
	"bsc-custody.backend/pkg/redis"
)

const cursorKeyPrefix = "deposit_monitor:cursor:"

// DepositTracker advances a single expected deposit
type DepositTracker interface {
	BackfillStart(ctx context.Context) (uint64, error)
	Tick(ctx context.Context, depositID uuid.UUID, fromBlock uint64) (*usecases.MonitorTick, error)
	Expire(ctx context.Context, depositID uuid.UUID) error
}

// CursorStore persists the next block each session scans from, so a restart resumes where it left off
type CursorStore interface {
	Load(ctx context.Context, depositID uuid.UUID) (uint64, bool, error)
	Save(ctx context.Context, depositID uuid.UUID, block uint64, ttl time.Duration) error
	Delete(ctx context.Context, depositID uuid.UUID) error
}

// RedisCursorStore keeps monitor cursors in redis
type RedisCursorStore struct{}

func NewRedisCursorStore() *RedisCursorStore {
	return &RedisCursorStore{}
}

func cursorKey(depositID uuid.UUID) string {
	return cursorKeyPrefix + depositID.String()
}

func (RedisCursorStore) Load(ctx context.Context, depositID uuid.UUID) (uint64, bool, error) {
	raw, err := redis.Get(ctx, cursorKey(depositID))
	if redis.IsNil(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	block, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return block, true, nil
}

func (RedisCursorStore) Save(ctx context.Context, depositID uuid.UUID, block uint64, ttl time.Duration) error {
	return redis.Set(ctx, cursorKey(depositID), strconv.FormatUint(block, 10), ttl)
}

func (RedisCursorStore) Delete(ctx context.Context, depositID uuid.UUID) error {
	return redis.Del(ctx, cursorKey(depositID))
}

type monitorSession struct {
	depositID uuid.UUID
	deadline  time.Time
	cancel    context.CancelFunc

	// busy serializes the push and backup tickers of one session
	busy   sync.Mutex
	cursor uint64
}

// DepositMonitor runs one monitoring session per expected deposit.
// Each session is advanced by a fast push ticker and a slower backup poll until
// the deposit settles or its monitoring window closes.
type DepositMonitor struct {
	tracker        DepositTracker
	cursors        CursorStore
	pushInterval   time.Duration
	backupInterval time.Duration
	ttl            time.Duration
	nowFn          func() time.Time

	baseCtx  context.Context
	shutdown context.CancelFunc

	mu       sync.Mutex
	sessions map[uuid.UUID]*monitorSession
	wg       sync.WaitGroup
}

func NewDepositMonitor(
	ctx context.Context,
	tracker DepositTracker,
	cursors CursorStore,
	pushInterval, backupInterval, ttl time.Duration,
) *DepositMonitor {
	if pushInterval <= 0 {
		pushInterval = 10 * time.Second
	}
	if backupInterval <= 0 {
		backupInterval = 30 * time.Second
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	base, cancel := context.WithCancel(logger.WithComponent(ctx, "deposit_monitor"))
	return &DepositMonitor{
		tracker:        tracker,
		cursors:        cursors,
		pushInterval:   pushInterval,
		backupInterval: backupInterval,
		ttl:            ttl,
		nowFn:          time.Now,
		baseCtx:        base,
		shutdown:       cancel,
		sessions:       make(map[uuid.UUID]*monitorSession),
	}
}

// Watch starts monitoring deposit. Watching a deposit that already has a session is a no-op.
func (m *DepositMonitor) Watch(ctx context.Context, deposit *entities.DepositRecord) error {
	if deposit == nil {
		return domainerrors.ErrBadRequest
	}
	if m.baseCtx.Err() != nil {
		return m.baseCtx.Err()
	}

	m.mu.Lock()
	if _, ok := m.sessions[deposit.ID]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start, found, err := m.cursors.Load(ctx, deposit.ID)
	if err != nil {
		logger.Warn(ctx, "Failed to load monitor cursor, backfilling", zap.String("deposit_id", deposit.ID.String()), zap.Error(err))
	}
	if !found {
		start, err = m.tracker.BackfillStart(ctx)
		if err != nil {
			return err
		}
	}

	createdAt := deposit.CreatedAt
	if createdAt.IsZero() {
		createdAt = m.nowFn()
	}

	sessionCtx, cancel := context.WithCancel(m.baseCtx)
	s := &monitorSession{
		depositID: deposit.ID,
		deadline:  createdAt.Add(m.ttl),
		cancel:    cancel,
		cursor:    start,
	}

	m.mu.Lock()
	if _, ok := m.sessions[deposit.ID]; ok {
		m.mu.Unlock()
		cancel()
		return nil
	}
	m.sessions[deposit.ID] = s
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.MonitorSessions.Inc()
	logger.Info(ctx, "Deposit monitoring started",
		zap.String("deposit_id", deposit.ID.String()),
		zap.Uint64("from_block", start),
		zap.Time("deadline", s.deadline),
	)

	go m.run(sessionCtx, s)
	return nil
}

// Resume restarts sessions for deposits that were open when the process last stopped
func (m *DepositMonitor) Resume(ctx context.Context, deposits []*entities.DepositRecord) int {
	resumed := 0
	for _, d := range deposits {
		if err := m.Watch(ctx, d); err != nil {
			logger.Warn(ctx, "Failed to resume deposit monitoring", zap.String("deposit_id", d.ID.String()), zap.Error(err))
			continue
		}
		resumed++
	}
	return resumed
}

// Active returns the number of running sessions
func (m *DepositMonitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Stop ends every session and waits for them to exit. Cursors are kept for the next start.
func (m *DepositMonitor) Stop() {
	m.shutdown()
	m.wg.Wait()
}

func (m *DepositMonitor) run(ctx context.Context, s *monitorSession) {
	defer m.wg.Done()

	push := time.NewTicker(m.pushInterval)
	defer push.Stop()
	backup := time.NewTicker(m.backupInterval)
	defer backup.Stop()

	if m.advance(ctx, s) {
		m.finish(s, true)
		return
	}

	for {
		select {
		case <-ctx.Done():
			m.finish(s, false)
			return
		case <-push.C:
		case <-backup.C:
		}
		if m.advance(ctx, s) {
			m.finish(s, true)
			return
		}
	}
}

// advance runs one tick of s and reports whether the session is over
func (m *DepositMonitor) advance(ctx context.Context, s *monitorSession) bool {
	if !s.busy.TryLock() {
		return false
	}
	defer s.busy.Unlock()

	if ctx.Err() != nil {
		return false
	}

	if !m.nowFn().Before(s.deadline) {
		if err := m.tracker.Expire(ctx, s.depositID); err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
			logger.Error(ctx, "Failed to expire deposit", zap.String("deposit_id", s.depositID.String()), zap.Error(err))
			return false
		}
		logger.Info(ctx, "Deposit monitoring window closed", zap.String("deposit_id", s.depositID.String()))
		return true
	}

	tick, err := m.tracker.Tick(ctx, s.depositID, s.cursor)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return true
	}
	if err != nil {
		logger.Warn(ctx, "Deposit monitor tick failed",
			zap.String("deposit_id", s.depositID.String()),
			zap.Uint64("from_block", s.cursor),
			zap.Error(err),
		)
		return false
	}

	if tick.NextBlock != s.cursor {
		s.cursor = tick.NextBlock
		if err := m.cursors.Save(ctx, s.depositID, s.cursor, time.Until(s.deadline)+time.Hour); err != nil {
			logger.Warn(ctx, "Failed to persist monitor cursor", zap.String("deposit_id", s.depositID.String()), zap.Error(err))
		}
	}

	if tick.Done && tick.Deposit != nil {
		logger.Info(ctx, "Deposit monitoring finished",
			zap.String("deposit_id", s.depositID.String()),
			zap.String("status", string(tick.Deposit.Status)),
		)
	}
	return tick.Done
}

// finish unregisters s. The cursor is dropped only when the session reached its end.
func (m *DepositMonitor) finish(s *monitorSession, completed bool) {
	s.cancel()

	if completed {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.cursors.Delete(ctx, s.depositID); err != nil {
			logger.Warn(ctx, "Failed to delete monitor cursor", zap.String("deposit_id", s.depositID.String()), zap.Error(err))
		}
		cancel()
	}

	m.mu.Lock()
	delete(m.sessions, s.depositID)
	m.mu.Unlock()
	metrics.MonitorSessions.Dec()
}
