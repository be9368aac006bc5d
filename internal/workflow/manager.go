package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"reelscribe/internal/config"
	"reelscribe/internal/logging"
	"reelscribe/internal/notifications"
	"reelscribe/internal/queue"
)

// Manager coordinates stage worker pools over the status store.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	retry             RetryPolicy
	pollInterval      time.Duration
	maxIdleInterval   time.Duration
	heartbeatInterval time.Duration
	stageTimeout      time.Duration
	claimBatch        int
	reclaimer         *Reclaimer
	reclaimInterval   time.Duration

	pools []*pool

	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	lastErr     error
	lastReclaim time.Time
	notified    map[string]struct{}
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier overrides the notifier built from configuration.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithPollIntervals overrides the idle backoff bounds.
func WithPollIntervals(poll, maxIdle time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollInterval = poll
		m.maxIdleInterval = max(maxIdle, poll)
	}
}

// WithHeartbeatInterval overrides how often executing claims heartbeat.
func WithHeartbeatInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.heartbeatInterval = interval
	}
}

// WithRetryPolicy overrides the policy built from configuration.
func WithRetryPolicy(policy RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.retry = policy
	}
}

// WithReclaimer overrides the stuck-work reclaimer and its sweep interval.
func WithReclaimer(reclaimer *Reclaimer, interval time.Duration) ManagerOption {
	return func(m *Manager) {
		m.reclaimer = reclaimer
		m.reclaimInterval = interval
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "workflow"))
	m := &Manager{
		cfg:               cfg,
		store:             store,
		logger:            logger,
		notifier:          notifications.NewService(cfg),
		retry:             RetryPolicyFromConfig(cfg),
		pollInterval:      config.Seconds(cfg.Workflow.PollInterval),
		maxIdleInterval:   config.Seconds(cfg.Workflow.MaxIdleInterval),
		heartbeatInterval: config.Seconds(cfg.Workflow.HeartbeatInterval),
		stageTimeout:      config.Seconds(cfg.Workflow.StageTimeout),
		claimBatch:        max(cfg.Workflow.ClaimBatch, 1),
		reclaimer:         NewReclaimer(store, config.Seconds(cfg.Workflow.ReclaimTimeout), logger),
		reclaimInterval:   config.Seconds(cfg.Workflow.ReclaimInterval),
		notified:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	if m.maxIdleInterval < m.pollInterval {
		m.maxIdleInterval = m.pollInterval
	}
	return m
}
