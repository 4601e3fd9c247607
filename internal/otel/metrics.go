package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all daemon metrics instruments.
type Metrics struct {
	RPCDuration         metric.Float64Histogram
	ScheduleRunDuration metric.Float64Histogram
	ScheduleRunsTotal   metric.Int64Counter
	SearchDuration      metric.Float64Histogram
	NotifyAttempts      metric.Int64Counter
	NotifyFailures      metric.Int64Counter
	BusEventsDropped    metric.Int64Counter
	ActiveSessions      metric.Int64UpDownCounter
	AgentHeartbeatMiss  metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.RPCDuration, err = meter.Float64Histogram("maxclaw.rpc.duration",
		metric.WithDescription("IPC request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ScheduleRunDuration, err = meter.Float64Histogram("maxclaw.schedule.run.duration",
		metric.WithDescription("Scheduled task execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ScheduleRunsTotal, err = meter.Int64Counter("maxclaw.schedule.runs",
		metric.WithDescription("Total scheduled task executions"),
	)
	if err != nil {
		return nil, err
	}

	m.SearchDuration, err = meter.Float64Histogram("maxclaw.search.duration",
		metric.WithDescription("Cross-project code search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.NotifyAttempts, err = meter.Int64Counter("maxclaw.notify.attempts",
		metric.WithDescription("Notifier delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	m.NotifyFailures, err = meter.Int64Counter("maxclaw.notify.failures",
		metric.WithDescription("Notifier delivery failures after retry exhaustion"),
	)
	if err != nil {
		return nil, err
	}

	m.BusEventsDropped, err = meter.Int64Counter("maxclaw.bus.events.dropped",
		metric.WithDescription("Bus deliveries dropped because a subscriber handler panicked"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveSessions, err = meter.Int64UpDownCounter("maxclaw.sessions.active",
		metric.WithDescription("Number of currently running coding-agent sessions"),
	)
	if err != nil {
		return nil, err
	}

	m.AgentHeartbeatMiss, err = meter.Int64Counter("maxclaw.agent.heartbeat.miss",
		metric.WithDescription("Agent heartbeat misses leading to offline transitions"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
