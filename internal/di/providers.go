package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/internal/ensemble"
	"OrgTrader/internal/handler/api"
	internalrepo "OrgTrader/internal/repository"
	"OrgTrader/internal/service/wsfeed"
	"OrgTrader/internal/usecase"
	"OrgTrader/pkg/cache"
	pkgch "OrgTrader/pkg/clickhouse"
	"OrgTrader/pkg/config"
	xhttp "OrgTrader/pkg/http"
	pkgkafka "OrgTrader/pkg/kafka"
	applogger "OrgTrader/pkg/logger"
	"OrgTrader/pkg/metrics"
	"OrgTrader/pkg/server"
	"OrgTrader/pkg/util"
)

// ProvideRegistry creates the Prometheus registry shared by the recorder, the Kafka client
// metrics and the HTTP scrape endpoint.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.NewWithRegistry(reg)
}

// ProvideKafkaProducer creates a Kafka producer. It returns nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger. Repeated errors are aggregated and shipped
// to Kafka when a collector topic is configured.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if producer != nil && cfg.Logger.Collector.Topic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.Threshold,
			Topic:          cfg.Logger.Collector.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideClickHouseClient connects to ClickHouse when the feed or the history sink needs it.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Feed.Type != "clickhouse" && !cfg.History.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(internalrepo.DefaultBarsTable, cfg.History.Table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache returns Redis behind an in-process layer when enabled, otherwise memory only.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.PoolSize, 2, 30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc, cfg.Redis.LocalTTL), nil
}

// ProvideReportStore keeps the latest report for the HTTP API.
func ProvideReportStore(c cache.Service, cfg *config.Config) *internalrepo.CacheReportStore {
	return internalrepo.NewCacheReportStore(c, cfg.Redis.TTL)
}

// ProvideReportSink fans reports out to the cache, ClickHouse history and the status topic.
func ProvideReportSink(
	store *internalrepo.CacheReportStore,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	cfg *config.Config,
) domrepo.ReportSink {
	sinks := internalrepo.MultiSink{store}
	if ch != nil && cfg.History.Enabled {
		sinks = append(sinks, internalrepo.NewCHReportSink(ch, cfg.History.Table))
	}
	if producer != nil && cfg.Kafka.ReportsTopic != "" {
		sinks = append(sinks, internalrepo.NewKafkaReportSink(producer, cfg.Kafka.ReportsTopic))
	}
	return sinks
}

// ProvideBroker selects the paper or Kafka broker.
func ProvideBroker(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) (domrepo.Broker, error) {
	switch cfg.Broker.Type {
	case "kafka":
		if producer == nil {
			return nil, fmt.Errorf("kafka broker needs kafka.brokers")
		}
		b := internalrepo.NewKafkaBroker(producer, cfg.Broker.OrdersTopic, internalrepo.BreakerSettings{
			MaxRequests: cfg.Broker.Breaker.MaxRequests,
			Interval:    cfg.Broker.Breaker.Interval,
			Timeout:     cfg.Broker.Breaker.Timeout,
			MaxFailures: cfg.Broker.Breaker.MaxFailures,
		})
		b.SetLogger(l)
		return b, nil
	default:
		return internalrepo.NewPaperBroker(), nil
	}
}

// ProvideEnsemble builds the ensemble from the configured analysts.
func ProvideEnsemble(cfg *config.Config, l *applogger.Logger) (*ensemble.Ensemble, error) {
	return usecase.BuildEnsemble(cfg.Ensemble.Name, cfg.Ensemble.InitMode, cfg.Ensemble.Analysts, l)
}

// ProvideEpochProcessor wires the ensemble to its scheduler, order generator and sinks.
func ProvideEpochProcessor(
	cfg *config.Config,
	ens *ensemble.Ensemble,
	broker domrepo.Broker,
	sink domrepo.ReportSink,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.EpochProcessor {
	return usecase.NewEpochProcessor(
		ens,
		ensemble.NewRebalanceScheduler(cfg.Ensemble.RebalancePeriod),
		usecase.NewOrderGenerator(broker, cfg.Ensemble.Capital, m),
		usecase.WithStrict(cfg.Ensemble.Strict),
		usecase.WithReportSink(sink),
		usecase.WithMetrics(m),
		usecase.WithLogger(l),
	)
}

// ProvideIngest builds the bar feed the processor reads and any background sources.
func ProvideIngest(
	cfg *config.Config,
	ens *ensemble.Ensemble,
	ch *pkgch.Client,
	m domrepo.Metrics,
	reg *prometheus.Registry,
	l *applogger.Logger,
) (*server.Ingest, error) {
	symbols := feedSymbols(cfg, ens)
	tf := domrepo.NormalizeTimeframe(cfg.Feed.Timeframe)

	switch cfg.Feed.Type {
	case "csv":
		feed, err := internalrepo.OpenCSVFeed(cfg.Feed.Path)
		if err != nil {
			return nil, fmt.Errorf("csv feed: %w", err)
		}
		return &server.Ingest{Feed: feed}, nil

	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse feed needs a clickhouse client")
		}
		from := tf.Truncate(util.ParseTimeDefault(cfg.Feed.From, time.Time{}))
		to := tf.Truncate(util.ParseTimeDefault(cfg.Feed.To, time.Now()))
		store := internalrepo.NewCHBarStore(ch, internalrepo.DefaultBarsTable)
		store.SetLogger(l)
		return &server.Ingest{Feed: internalrepo.NewReplayFeed(store, symbols, from, to, tf)}, nil

	case "websocket":
		feed := internalrepo.NewChannelFeed(cfg.Feed.BufferSize)
		asm := newAssembler(cfg, "", feed, nil, ch, m, l)
		subs := make([]string, 0, len(symbols))
		for _, s := range symbols {
			subs = append(subs, string(s))
		}
		stream := wsfeed.New(cfg.Feed.WebSocketURL, subs, asm,
			wsfeed.WithToken(cfg.Feed.Token),
			wsfeed.WithTimeframe(tf),
			wsfeed.WithReconnectDelay(cfg.Feed.ReconnectDelay),
			wsfeed.WithReconnectMax(cfg.Feed.ReconnectMax),
			wsfeed.WithPingInterval(cfg.Feed.PingInterval),
			wsfeed.WithMetrics(m),
			wsfeed.WithLogger(l),
		)
		return &server.Ingest{Feed: feed, Sources: []server.Source{server.StreamSource(stream, asm, feed)}}, nil

	default:
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
			pkgkafka.WithConsumerRegisterer(reg),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		consumer.SetLogger(l)
		consumer.WithConsumerHook(pkgkafka.NewHookChain(
			pkgkafka.TraceHook(),
			pkgkafka.MaxPayloadHook(cfg.Kafka.Consumer.MaxBytes),
			pkgkafka.LogHook(l),
		))

		feed := internalrepo.NewChannelFeed(cfg.Feed.BufferSize)
		asm := newAssembler(cfg, cfg.Kafka.BarsTopic, feed, symbols, ch, m, l)
		return &server.Ingest{Feed: feed, Sources: []server.Source{server.KafkaSource(consumer, asm, feed)}}, nil
	}
}

func newAssembler(
	cfg *config.Config,
	topic string,
	feed *internalrepo.ChannelFeed,
	expected []models.Instrument,
	ch *pkgch.Client,
	m domrepo.Metrics,
	l *applogger.Logger,
) *internalrepo.BarAssembler {
	asm := internalrepo.NewBarAssembler(topic, feed, expected, m)
	asm.SetLogger(l)
	if ch != nil && cfg.History.Enabled {
		store := internalrepo.NewCHBarStore(ch, internalrepo.DefaultBarsTable)
		store.SetLogger(l)
		asm.SetArchive(store)
	}
	return asm
}

// feedSymbols returns the configured symbols, or every instrument the analysts hold.
func feedSymbols(cfg *config.Config, ens *ensemble.Ensemble) []models.Instrument {
	if len(cfg.Feed.Symbols) == 0 {
		return ens.Instruments()
	}
	out := make([]models.Instrument, 0, len(cfg.Feed.Symbols))
	for _, s := range cfg.Feed.Symbols {
		out = append(out, models.Instrument(s))
	}
	return out
}

// ProvideHTTPServer serves the read-only ensemble API and the scrape endpoint.
func ProvideHTTPServer(
	cfg *config.Config,
	store *internalrepo.CacheReportStore,
	c cache.Service,
	ch *pkgch.Client,
	reg *prometheus.Registry,
	l *applogger.Logger,
) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	h := api.NewEnsembleHandler(l, store)
	h.AddHealthCheck("cache", c.Ping)
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithRateLimit(cfg.Server.RateBurst, cfg.Server.RatePerSec),
		xhttp.WithRegistry(reg),
	)
}

// ProvideApp creates the application server and registers resources to release on shutdown.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	processor *usecase.EpochProcessor,
	ingest *server.Ingest,
	httpServer *xhttp.Server,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	c cache.Service,
) *server.App {
	app := server.New(cfg, l, processor, ingest, httpServer)
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	app.AddCloser("cache", c.Close)
	if f, ok := ingest.Feed.(*internalrepo.CSVFeed); ok {
		app.AddCloser("csv feed", f.Close)
	}
	app.AddCloser("logger", func() error {
		l.RemoveCollector()
		return nil
	})
	return app
}
