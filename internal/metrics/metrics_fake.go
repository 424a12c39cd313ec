package metrics

// metricsFake is a no-op implementation of Metrics
type metricsFake struct{}

// Ensure metricsFake implements Metrics
var _ Metrics = (*metricsFake)(nil)

// NewMetricsFake creates an instance of the no-op metrics logger
func NewMetricsFake() Metrics {
	return &metricsFake{}
}

// LogEvent is a no-op method for the fake logger
func (metrics *metricsFake) LogEvent(_ string, _ map[string]string, _ map[string]interface{}) {
	// No operation, this is a fake logger
}

// LogChannelEvent is a no-op method for the fake logger
func (metrics *metricsFake) LogChannelEvent(_ string, _ string, _ map[string]interface{}) {
	// No operation, this is a fake logger
}

// CounterAdd is a no-op method for the fake logger
func (metrics *metricsFake) CounterAdd(_ string, _ int64) {
	// No operation, this is a fake logger
}

// Close is a no-op method for the fake logger
func (metrics *metricsFake) Close() {
	// No operation, this is a fake logger
}
