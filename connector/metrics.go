package connector

import (
	"context"

	"github.com/ceyewan/coord/metrics"
	"github.com/ceyewan/coord/xerrors"
)

const (
	MetricConnectionAttempts = "connector_connection_attempts_total"
	MetricConnectionUp       = "connector_connection_up"
)

// connMetrics 连接器共用的指标
type connMetrics struct {
	driver   string
	name     string
	attempts metrics.Counter
	up       metrics.Gauge
}

func newConnMetrics(m metrics.Meter, driver, name string) (*connMetrics, error) {
	attempts, err := m.Counter(MetricConnectionAttempts, "Connection attempts by driver and outcome.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create connection attempts counter")
	}
	up, err := m.Gauge(MetricConnectionUp, "Whether the connector is currently healthy.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create connection up gauge")
	}
	return &connMetrics{driver: driver, name: name, attempts: attempts, up: up}, nil
}

func (m *connMetrics) observe(ctx context.Context, err error) {
	outcome := metrics.OutcomeSuccess
	up := 1.0
	if err != nil {
		outcome = metrics.OutcomeError
		up = 0
	}
	m.attempts.Inc(ctx,
		metrics.L("driver", m.driver),
		metrics.L("connector", m.name),
		metrics.L(metrics.LabelOutcome, outcome))
	m.up.Set(ctx, up, metrics.L("driver", m.driver), metrics.L("connector", m.name))
}

func (m *connMetrics) down(ctx context.Context) {
	m.up.Set(ctx, 0, metrics.L("driver", m.driver), metrics.L("connector", m.name))
}
