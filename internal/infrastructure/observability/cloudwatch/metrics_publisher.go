package cloudwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/dreschagin/research-monitor/internal/application/port"
)

const (
	// CloudWatch caps PutMetricData at 1000 datums per request.
	maxMetricsPerRequest = 1000
	maxRetries           = 3
	initialBackoff       = 100 * time.Millisecond
)

// MetricsPublisherConfig holds CloudWatch publishing settings.
type MetricsPublisherConfig struct {
	Namespace       string // e.g. "ResearchMonitor/Collection"
	Region          string
	Endpoint        string // optional override for LocalStack
	AccessKeyID     string
	SecretAccessKey string
	BufferSize      int
	FlushInterval   time.Duration
}

// MetricsPublisher buffers collection telemetry and ships it to CloudWatch in
// batches. Implements port.RunMetricsPublisher.
type MetricsPublisher struct {
	client    *cloudwatch.Client
	namespace string

	buffer     []types.MetricDatum
	bufferSize int
	mu         sync.Mutex

	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig) (*MetricsPublisher, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("namespace is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("region is required")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.Region, cfg.Endpoint, cfg.AccessKeyID, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("build AWS config: %w", err)
	}

	p := &MetricsPublisher{
		client:      cloudwatch.NewFromConfig(awsCfg),
		namespace:   cfg.Namespace,
		buffer:      make([]types.MetricDatum, 0, cfg.BufferSize),
		bufferSize:  cfg.BufferSize,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

// RecordRun buffers the headline numbers of one collection run.
func (p *MetricsPublisher) RecordRun(summary port.RunSummaryEvent, duration time.Duration) {
	ts := time.Now()
	dims := []types.Dimension{{Name: aws.String("RunID"), Value: aws.String(summary.RunID)}}

	p.enqueue(
		datum("RunDurationMs", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, ts, nil),
		datum("OrganizationsSucceeded", float64(summary.Succeeded), types.StandardUnitCount, ts, dims),
		datum("OrganizationsPartial", float64(summary.Partial), types.StandardUnitCount, ts, dims),
		datum("OrganizationsFailed", float64(summary.Failed), types.StandardUnitCount, ts, dims),
		datum("AlertsOpened", float64(summary.AlertsOpened), types.StandardUnitCount, ts, dims),
		datum("AlertsResolved", float64(summary.AlertsResolved), types.StandardUnitCount, ts, dims),
	)
}

// RecordOrganizationFetch buffers per-organization fetch telemetry.
func (p *MetricsPublisher) RecordOrganizationFetch(organizationID string, attempts int, ok bool, duration time.Duration) {
	ts := time.Now()
	dims := []types.Dimension{{Name: aws.String("Organization"), Value: aws.String(organizationID)}}

	outcome := 0.0
	if ok {
		outcome = 1.0
	}
	p.enqueue(
		datum("FetchDurationMs", float64(duration.Milliseconds()), types.StandardUnitMilliseconds, ts, dims),
		datum("FetchAttempts", float64(attempts), types.StandardUnitCount, ts, dims),
		datum("FetchSuccess", outcome, types.StandardUnitCount, ts, dims),
	)
}

// Flush publishes everything buffered so far.
func (p *MetricsPublisher) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushBufferLocked(ctx)
}

// Close stops the background flusher and drains the buffer.
func (p *MetricsPublisher) Close() error {
	close(p.stopCh)
	p.flushTicker.Stop()
	p.wg.Wait()
	return p.Flush()
}

func (p *MetricsPublisher) enqueue(data ...types.MetricDatum) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buffer = append(p.buffer, data...)
	if len(p.buffer) >= p.bufferSize {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		// Buffer overflow flushes inline; telemetry loss beats unbounded growth.
		_ = p.flushBufferLocked(ctx)
	}
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.flushTicker.C:
			_ = p.Flush()
		case <-p.stopCh:
			return
		}
	}
}

func (p *MetricsPublisher) flushBufferLocked(ctx context.Context) error {
	if len(p.buffer) == 0 {
		return nil
	}

	for i := 0; i < len(p.buffer); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(p.buffer) {
			end = len(p.buffer)
		}
		if err := p.publishBatchWithRetry(ctx, p.buffer[i:end]); err != nil {
			return fmt.Errorf("publish chunk: %w", err)
		}
	}

	p.buffer = p.buffer[:0]
	return nil
}

func (p *MetricsPublisher) publishBatchWithRetry(ctx context.Context, data []types.MetricDatum) error {
	var lastErr error
	backoff := initialBackoff

	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt < maxRetries-1 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

func datum(name string, value float64, unit types.StandardUnit, ts time.Time, dims []types.Dimension) types.MetricDatum {
	return types.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(ts),
		Dimensions: dims,
	}
}

// buildAWSConfig creates an AWS config with optional static credentials and
// endpoint override.
func buildAWSConfig(ctx context.Context, region, endpoint, accessKeyID, secretAccessKey string) (aws.Config, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" && secretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, err
	}
	if endpoint != "" {
		cfg.BaseEndpoint = aws.String(endpoint)
	}
	return cfg, nil
}
