package alerts

import (
	"context"
	"sync"

	"github.com/angelmondragon/credstock/internal/notify"
	"github.com/angelmondragon/credstock/internal/settings"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/metrics"
)

// Counter reads the authoritative available count.
type Counter interface {
	CountAvailable(ctx context.Context, bucket *int64) (int64, error)
}

// CheckResult is returned by every evaluation.
type CheckResult struct {
	Available  int64 `json:"available"`
	Threshold  int64 `json:"threshold"`
	AlertFired bool  `json:"alertFired"`
	Kind       Kind  `json:"kind"`
}

// MonitorParams configure the monitor.
type MonitorParams struct {
	Counter          Counter
	Settings         settings.Provider
	Notifier         notify.Notifier
	Bucket           *int64
	DefaultThreshold int64
	Metrics          *metrics.StockMetrics
	Logger           *logger.Logger
}

// Monitor is the stock alert state machine.
type Monitor struct {
	params MonitorParams

	mu    sync.Mutex
	state State
}

func NewMonitor(params MonitorParams) *Monitor {
	if params.Notifier == nil {
		params.Notifier = notify.Noop{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Monitor{params: params, state: initialState()}
}

// Evaluate counts stock, classifies it and notifies when the decision rule says so.
// Evaluations are serialized; the state is updated whether or not delivery succeeded.
func (m *Monitor) Evaluate(ctx context.Context) (CheckResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.params.DefaultThreshold
	if m.params.Settings != nil {
		if snap, err := m.params.Settings.Get(ctx); err == nil {
			threshold = snap.StockThreshold
		} else {
			m.params.Logger.Warn(m.params.Logger.WithField(ctx, "error", err.Error()), "settings unavailable, using default threshold")
		}
	}

	available, err := m.params.Counter.CountAvailable(ctx, m.params.Bucket)
	if err != nil {
		return CheckResult{Threshold: threshold}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count available stock")
	}

	kind := Classify(available, threshold)
	fire := shouldAlert(m.state, kind, available)
	result := CheckResult{Available: available, Threshold: threshold, AlertFired: fire, Kind: kind}

	ctx = m.params.Logger.WithFields(ctx, map[string]any{
		"available": available,
		"threshold": threshold,
		"kind":      string(kind),
		"previous":  string(m.state.LastKind),
	})

	if fire {
		res := m.params.Notifier.Send(ctx, notify.KindStockAlert, notify.Payload{
			Available: available,
			Threshold: threshold,
			AlertKind: string(kind),
		})
		m.params.Metrics.IncAlert(string(kind))
		if res.Success {
			m.params.Logger.Info(ctx, "stock alert sent")
		} else {
			m.params.Logger.Warn(m.params.Logger.WithField(ctx, "notify_error", res.Error), "stock alert not delivered")
		}
	} else {
		m.params.Logger.Debug(ctx, "stock level evaluated")
	}

	m.state = m.state.next(kind, available)
	return result, nil
}

// State returns a copy of the last evaluation state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state
	if s.LastCount != nil {
		n := *s.LastCount
		s.LastCount = &n
	}
	return s
}
