// Package environment implements the Environment (spec.md §4.7, component
// C7): the one dependency-ordered constructor that turns a parsed Config into
// every collaborator the Pipeline Runtime needs, so cmd/enrich stays a thin
// wiring-and-signal-handling shell. Grounded on
// ai-infra/cmd/ai-infra-service/main.go's construction sequence
// (config -> db -> store -> signer -> sentinel client -> service ->
// httpserver), generalized here to metrics -> exception reporter -> schema
// client -> sinks -> asset manager initial load -> source -> processor
// identifier.
package environment

import (
	"context"
	"fmt"

	"github.com/flowlattice/enrich/internal/assets"
	"github.com/flowlattice/enrich/internal/config"
	"github.com/flowlattice/enrich/internal/enrichment"
	"github.com/flowlattice/enrich/internal/metrics"
	"github.com/flowlattice/enrich/internal/model"
	"github.com/flowlattice/enrich/internal/pausegate"
	"github.com/flowlattice/enrich/internal/pipeline"
	"github.com/flowlattice/enrich/internal/sink"
	"github.com/flowlattice/enrich/internal/source"
)

// ProcessorName and ProcessorVersion identify the running build for bad-row
// attribution (model.Processor). Set at link time or left at these defaults.
var (
	ProcessorName    = "enrich"
	ProcessorVersion = "dev"
)

// Environment bundles every constructed collaborator plus the Runtime
// they're wired into. cmd/enrich only calls Build and then Runtime.Run.
type Environment struct {
	Runtime      *pipeline.Runtime
	AssetManager *assets.Manager
	Gate         *pausegate.Gate
	Counters     *metrics.Counters
	Ready        bool
}

// EnrichmentBuilder is supplied by the caller (cmd/enrich, wired per
// deployment flavour) since the concrete enrichment algorithms are external
// collaborators per spec.md §1; environment only needs a way to turn the
// resolved asset paths into a Registry.
type EnrichmentBuilder = assets.Builder

// Options carries the collaborators Build cannot construct from Config alone
// because they are external collaborators with no canonical open-source
// implementation in scope (spec.md §9 Open Question): the collector-payload
// decoder, the schema client, and the PII extractor.
type Options struct {
	Decoder       enrichment.Decoder
	SchemaClient  enrichment.SchemaClient
	PII           enrichment.PIIExtractor
	Enrichments   []assets.EnrichmentAssets
	BuildRegistry EnrichmentBuilder
}

// Build constructs every collaborator in dependency order and returns a
// ready-to-run Environment, or a wrapped error describing the first failure.
// No collaborator here ever calls log.Fatalf: the single fatal-exit call site
// stays in cmd/enrich, matching the teacher's config.Load/main split.
func Build(ctx context.Context, cfg *config.Config, opts Options) (*Environment, error) {
	if opts.Decoder == nil {
		return nil, fmt.Errorf("environment: Options.Decoder is required")
	}
	if opts.BuildRegistry == nil {
		return nil, fmt.Errorf("environment: Options.BuildRegistry is required")
	}

	counters := &metrics.Counters{}

	reporters, err := buildMetricsReporters(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("environment: metrics reporters: %w", err)
	}

	exceptions, err := buildExceptionReporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("environment: exception reporter: %w", err)
	}

	goodSink, piiSink, badSink, err := buildSinks(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("environment: sinks: %w", err)
	}

	gate := pausegate.New()
	assetPeriod, err := config.ParseDuration(cfg.AssetsUpdatePeriod, 0)
	if err != nil {
		return nil, fmt.Errorf("environment: assetsUpdatePeriod: %w", err)
	}
	mgr, err := assets.NewManager(opts.Enrichments, assets.Config{
		HTTPFetcher: assets.NewHTTPFetcher(),
		Build:       opts.BuildRegistry,
		Gate:        gate,
		Period:      assetPeriod,
	})
	if err != nil {
		return nil, fmt.Errorf("environment: asset manager: %w", err)
	}
	if err := mgr.InitialLoad(ctx); err != nil {
		return nil, fmt.Errorf("environment: asset manager initial load: %w", err)
	}

	src, err := buildSource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("environment: source: %w", err)
	}

	proc := model.Processor{Name: ProcessorName, Version: ProcessorVersion}
	dispatcher := &enrichment.Dispatcher{
		Decoder:      opts.Decoder,
		SchemaClient: opts.SchemaClient,
		PII:          opts.PII,
		Reporter:     exceptions,
		Registry:     mgr,
		Counters:     counters,
		Processor:    proc,
	}

	rt := &pipeline.Runtime{
		Source:       src,
		Gate:         gate,
		Dispatcher:   dispatcher,
		AssetManager: mgr,
		GoodSink:     goodSink,
		PIISink:      piiSink,
		BadSink:      badSink,
		Counters:     counters,
		Reporters:    reporters,
		Exceptions:   exceptions,
		Cfg: pipeline.Config{
			Concurrency: cfg.Concurrency,
			Ordered:     cfg.Ordered,
		},
	}

	return &Environment{
		Runtime:      rt,
		AssetManager: mgr,
		Gate:         gate,
		Counters:     counters,
		Ready:        true,
	}, nil
}

func buildMetricsReporters(ctx context.Context, cfg *config.Config) ([]metrics.Reporter, error) {
	var reporters []metrics.Reporter
	m := cfg.Monitoring.Metrics
	if m.Stdout != nil {
		reporters = append(reporters, metrics.NewStdoutReporter())
	}
	if m.StatsD != nil {
		r, err := metrics.NewStatsDReporter(m.StatsD.Address, m.StatsD.Tags...)
		if err != nil {
			return nil, fmt.Errorf("statsd reporter: %w", err)
		}
		reporters = append(reporters, r)
	}
	cw := m.CloudWatch
	if cw == nil {
		for _, s := range []*config.SinkConfig{&cfg.Output.Good, cfg.Output.PII, &cfg.Output.Bad} {
			if s != nil && s.Type == "kinesis" {
				cw = &config.CloudWatchConfig{Region: s.Region}
				break
			}
		}
	}
	if cw != nil && !cw.Disabled {
		r, err := metrics.NewCloudWatchReporter(ctx, cw.Namespace, cw.Region)
		if err != nil {
			return nil, fmt.Errorf("cloudwatch reporter: %w", err)
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

func buildExceptionReporter(cfg *config.Config) (metrics.ExceptionReporter, error) {
	s := cfg.Monitoring.Sentry
	if s == nil {
		return nil, nil
	}
	return metrics.NewSentryReporter(s.DSN, s.Environment)
}

func buildSinks(ctx context.Context, cfg *config.Config) (good, pii, bad sink.Sink, err error) {
	good, err = buildSink(ctx, cfg.Output.Good)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("output.good: %w", err)
	}
	if cfg.Output.PII != nil {
		pii, err = buildSink(ctx, *cfg.Output.PII)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("output.pii: %w", err)
		}
	}
	bad, err = buildSink(ctx, cfg.Output.Bad)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("output.bad: %w", err)
	}
	return good, pii, bad, nil
}

func buildSink(ctx context.Context, s config.SinkConfig) (sink.Sink, error) {
	minBackoff, err := config.ParseDuration(s.BackoffPolicy.MinBackoff, 0)
	if err != nil {
		return nil, fmt.Errorf("backoffPolicy.minBackoff: %w", err)
	}
	maxBackoff, err := config.ParseDuration(s.BackoffPolicy.MaxBackoff, 0)
	if err != nil {
		return nil, fmt.Errorf("backoffPolicy.maxBackoff: %w", err)
	}
	delay, err := config.ParseDuration(s.DelayThreshold, 0)
	if err != nil {
		return nil, fmt.Errorf("delayThreshold: %w", err)
	}
	batchCfg := sink.Config{
		MaxBatchSize:  s.MaxBatchSize,
		MaxBatchBytes: s.MaxBatchBytes,
		DelayThreshold: delay,
		Backoff: sink.BackoffPolicy{
			MinBackoff: minBackoff,
			MaxBackoff: maxBackoff,
		},
	}

	switch s.Type {
	case "kinesis":
		return sink.NewKinesisSink(ctx, sink.KinesisSinkConfig{
			StreamName:       s.StreamName,
			Region:           s.Region,
			PartitionKeyAttr: s.PartitionKey,
			Batch:            batchCfg,
		})
	case "kafka":
		return sink.NewKafkaSink(sink.KafkaSinkConfig{
			Brokers:          s.Brokers,
			Topic:            s.Topic,
			PartitionKeyAttr: s.PartitionKey,
			Batch:            batchCfg,
		})
	default:
		return nil, fmt.Errorf("unknown sink type %q", s.Type)
	}
}

func buildSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	in := cfg.Input
	switch in.Type {
	case "kinesis":
		return source.NewKinesisSource(ctx, source.KinesisSourceConfig{
			StreamName:      in.StreamName,
			Region:          in.Region,
			InitialPosition: in.InitialPosition,
			MaxRecords:      in.RetrievalMode.MaxRecords,
		})
	case "kafka":
		return source.NewKafkaSource(source.KafkaSourceConfig{
			Brokers: in.Brokers,
			Topic:   in.Topic,
			GroupID: in.GroupID,
		}), nil
	default:
		return nil, fmt.Errorf("unknown input type %q", in.Type)
	}
}
