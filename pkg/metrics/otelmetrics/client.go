// Package otelmetrics implements metrics.Client on top of the OpenTelemetry
// SDK. Measurements are pulled through a manual reader and exposed as a JSON
// snapshot by Handler.
package otelmetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/architeacher/device-inventory/pkg/metrics"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.32.0"
)

const meterName = "github.com/architeacher/device-inventory"

type (
	Client struct {
		provider    *sdkmetric.MeterProvider
		reader      *sdkmetric.ManualReader
		resource    *resource.Resource
		meter       metric.Meter
		descriptors metrics.Descriptors

		mu         sync.Mutex
		counters   map[string]metric.Int64Counter
		histograms map[string]metric.Float64Histogram
	}

	Point struct {
		Attributes map[string]string `json:"attributes,omitempty"`
		Value      *int64            `json:"value,omitempty"`
		Count      *uint64           `json:"count,omitempty"`
		Sum        *float64          `json:"sum,omitempty"`
	}

	Series struct {
		Name   string  `json:"name"`
		Unit   string  `json:"unit,omitempty"`
		Points []Point `json:"points"`
	}
)

func NewClient(serviceName, serviceVersion string, descriptors metrics.Descriptors) (*Client, error) {
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metrics resource: %w", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	return &Client{
		provider:    provider,
		reader:      reader,
		resource:    res,
		meter:       provider.Meter(meterName),
		descriptors: descriptors,
		counters:    make(map[string]metric.Int64Counter),
		histograms:  make(map[string]metric.Float64Histogram),
	}, nil
}

// Inc records value under key. Integers increment a counter, floats feed a
// histogram, and other types are ignored.
func (c *Client) Inc(ctx context.Context, key string, value any, attributes ...attribute.KeyValue) {
	opt := metric.WithAttributes(attributes...)

	switch v := value.(type) {
	case int:
		if counter := c.counter(key); counter != nil {
			counter.Add(ctx, int64(v), opt)
		}
	case int64:
		if counter := c.counter(key); counter != nil {
			counter.Add(ctx, v, opt)
		}
	case float64:
		if histogram := c.histogram(key); histogram != nil {
			histogram.Record(ctx, v, opt)
		}
	}
}

func (c *Client) counter(name string) metric.Int64Counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[name]; ok {
		return counter
	}

	counter, err := metrics.RegisterInt64Counter(c.meter, c.descriptors.Lookup(name), name)
	if err != nil {
		return nil
	}

	c.counters[name] = counter

	return counter
}

func (c *Client) histogram(name string) metric.Float64Histogram {
	c.mu.Lock()
	defer c.mu.Unlock()

	if histogram, ok := c.histograms[name]; ok {
		return histogram
	}

	histogram, err := metrics.RegisterFloat64Histogram(c.meter, c.descriptors.Lookup(name), name)
	if err != nil {
		return nil
	}

	c.histograms[name] = histogram

	return histogram
}

// Snapshot collects the current state of every instrument.
func (c *Client) Snapshot(ctx context.Context) ([]Series, error) {
	var rm metricdata.ResourceMetrics
	if err := c.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	series := make([]Series, 0)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			s := Series{Name: m.Name, Unit: m.Unit}

			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					value := dp.Value
					s.Points = append(s.Points, Point{Attributes: toMap(dp.Attributes), Value: &value})
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					count, sum := dp.Count, dp.Sum
					s.Points = append(s.Points, Point{Attributes: toMap(dp.Attributes), Count: &count, Sum: &sum})
				}
			default:
				continue
			}

			series = append(series, s)
		}
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Name < series[j].Name })

	return series, nil
}

func (c *Client) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		series, err := c.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resource": toMap(*c.resource.Set()),
			"metrics":  series,
		})
	})
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.provider.Shutdown(ctx)
}

func toMap(set attribute.Set) map[string]string {
	if set.Len() == 0 {
		return nil
	}

	out := make(map[string]string, set.Len())
	for _, kv := range set.ToSlice() {
		out[string(kv.Key)] = kv.Value.Emit()
	}

	return out
}
