package metrics

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Metrics defines the contract for logging archiver metrics
type Metrics interface {
	LogEvent(eventName string, tags map[string]string, fields map[string]interface{})
	LogChannelEvent(eventName string, channelID string, fields map[string]interface{})
	CounterAdd(name string, delta int64)
	Close()
}

type metricsImpl struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPI
	org         string
	bucket      string
	defaultTags map[string]string // Constant tags, like bot ID
}

// Ensure metricsImpl implements Metrics
var _ Metrics = (*metricsImpl)(nil)

// NewMetricsImpl initializes the logger with constant tags like bot ID
func NewMetricsImpl(url string, token string, org string, bucket string, defaultTags map[string]string) Metrics {
	client := influxdb2.NewClient(url, token)
	writeAPI := client.WriteAPI(org, bucket)
	return &metricsImpl{
		client:      client,
		writeAPI:    writeAPI,
		org:         org,
		bucket:      bucket,
		defaultTags: defaultTags,
	}
}

// Universal method to log an event with customizable tags and fields
func (this *metricsImpl) LogEvent(eventName string, tags map[string]string, fields map[string]interface{}) {
	if len(fields) == 0 {
		return
	}

	point := influxdb2.NewPointWithMeasurement("archiver_event").
		AddTag("event", eventName).
		SetTime(time.Now())

	// Add constant default tags
	for key, value := range this.defaultTags {
		point.AddTag(key, value)
	}

	// Add custom tags
	for key, value := range tags {
		point.AddTag(key, value)
	}

	// Add custom fields
	for key, value := range fields {
		point.AddField(key, value)
	}

	this.writeAPI.WritePoint(point)
}

// Specific method for logging channel-related events
func (this *metricsImpl) LogChannelEvent(eventName string, channelID string, fields map[string]interface{}) {
	if channelID == "" {
		return
	}

	tags := map[string]string{
		"channel_id": channelID,
	}

	this.LogEvent(eventName, tags, fields)
}

// CounterAdd emits a simple counter increment
func (this *metricsImpl) CounterAdd(name string, delta int64) {
	this.LogEvent(name, nil, map[string]interface{}{"count": delta})
}

// Close flushes the write API and closes the client
func (this *metricsImpl) Close() {
	this.writeAPI.Flush()
	this.client.Close()
}
