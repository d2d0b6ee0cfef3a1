package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// CloudWatchReporter publishes the same snapshot as a CloudWatch custom
// metric namespace, grounded on the same AWS SDK v2 client-construction
// idiom used throughout (s3_archiver.go, the Kinesis sink). Enabled by
// default when the Kinesis sink is used (spec.md §4.6).
type CloudWatchReporter struct {
	client    *cloudwatch.Client
	namespace string
}

// NewCloudWatchReporter constructs a CloudWatchReporter using the default
// AWS credential chain.
func NewCloudWatchReporter(ctx context.Context, namespace, region string) (*CloudWatchReporter, error) {
	opts := []func(*awsConfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsConfig.WithRegion(region))
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if namespace == "" {
		namespace = "Enrich"
	}
	return &CloudWatchReporter{client: cloudwatch.NewFromConfig(cfg), namespace: namespace}, nil
}

// Report implements Reporter. Publish is fire-and-forget with a bounded
// per-call timeout; a transient CloudWatch failure must never block the
// reporting stream (spec.md §4.6's periodic drain is best-effort).
func (r *CloudWatchReporter) Report(s Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data := []cwtypes.MetricDatum{
		metricDatum("RawCount", float64(s.RawCount)),
		metricDatum("GoodCount", float64(s.GoodCount)),
		metricDatum("BadCount", float64(s.BadCount)),
	}
	if s.EnrichLatencyMs != nil {
		data = append(data, metricDatum("EnrichLatencyMs", *s.EnrichLatencyMs))
	}

	_, _ = r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(r.namespace),
		MetricData: data,
	})
}

func metricDatum(name string, value float64) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(time.Now().UTC()),
	}
}
