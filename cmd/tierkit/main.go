// Command tierkit runs the subscription lifecycle service: the payment
// webhook endpoint, the renewal scheduler with its continuation consumer,
// and the downgrade queue consumer.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/gridshot/tierkit/pkg/catalog"
	"github.com/gridshot/tierkit/pkg/config"
	"github.com/gridshot/tierkit/pkg/downgrade"
	"github.com/gridshot/tierkit/pkg/httpserver"
	"github.com/gridshot/tierkit/pkg/ingest"
	"github.com/gridshot/tierkit/pkg/logger"
	"github.com/gridshot/tierkit/pkg/payment"
	"github.com/gridshot/tierkit/pkg/queue"
	"github.com/gridshot/tierkit/pkg/quota"
	"github.com/gridshot/tierkit/pkg/renewal"
	"github.com/gridshot/tierkit/pkg/secretstore"
	"github.com/gridshot/tierkit/pkg/subscription"
)

type appConfig struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	SubscriptionsTable   string `env:"SUBSCRIPTIONS_TABLE,required"`
	DowngradeQueueURL    string `env:"DOWNGRADE_QUEUE_URL,required"`
	ContinuationQueueURL string `env:"RENEWAL_CONTINUATION_QUEUE_URL,required"`

	CatalogSecretName      string `env:"PLAN_CATALOG_SECRET,required"`
	WebhookSecretName      string `env:"WEBHOOK_SIGNING_SECRET,required"`
	GatewayTokenSecretName string `env:"PAYMENT_GATEWAY_TOKEN_SECRET,required"`
	PaymentGatewayBaseURL  string `env:"PAYMENT_GATEWAY_BASE_URL,required"`

	RenewalInterval time.Duration `env:"RENEWAL_INTERVAL" envDefault:"1h"`
	FreeTierLimit   int32         `env:"FREE_TIER_LIMIT" envDefault:"3"`
	RenewalPageSize int32         `env:"RENEWAL_PAGE_SIZE" envDefault:"1000"`
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := logger.New(
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithService("tierkit"),
	)
	logger.SetAsDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("service exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg appConfig, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}

	secrets := secretstore.NewCached(secretstore.NewSecretsManager(secretsmanager.NewFromConfig(awsCfg)))
	catalogSrc := catalog.NewSource(secrets, cfg.CatalogSecretName)
	store := subscription.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.SubscriptionsTable)
	quotaSvc := quota.NewAPIGateway(apigateway.NewFromConfig(awsCfg))

	sqsClient := sqs.NewFromConfig(awsCfg)
	downgradeQueue := queue.NewSQSQueue(sqsClient, cfg.DowngradeQueueURL)
	continuationQueue := queue.NewSQSQueue(sqsClient, cfg.ContinuationQueueURL)

	gatewayToken, err := secrets.GetSecret(ctx, cfg.GatewayTokenSecretName)
	if err != nil {
		return err
	}
	gateway, err := payment.NewClient(cfg.PaymentGatewayBaseURL, gatewayToken)
	if err != nil {
		return err
	}

	ingestor := ingest.NewIngestor(secrets, cfg.WebhookSecretName, gateway, store, quotaSvc, catalogSrc,
		ingest.WithLogger(log))
	reconciler := downgrade.NewReconciler(store, quotaSvc, catalogSrc,
		downgrade.WithFreeTierLimit(cfg.FreeTierLimit),
		downgrade.WithLogger(log))
	driver := renewal.NewDriver(store, gateway, downgradeQueue,
		renewal.WithPageSize(cfg.RenewalPageSize),
		renewal.WithLogger(log))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Post("/webhooks/payment", ingest.NewHandler(ingestor, log))
	r.Get("/healthz", httpserver.Healthcheck())

	srv := httpserver.New(cfg.HTTPAddr, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx, r)
	})

	// Scheduled renewal trigger: a fresh cycle starts with no cursor.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RenewalInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := renewal.Pump(ctx, driver, continuationQueue, nil); err != nil {
					log.Error("scheduled renewal run failed", slog.String("error", err.Error()))
				}
			}
		}
	})

	// Continuation consumer: resumes paginated renewal scans.
	g.Go(func() error {
		return consume(ctx, continuationQueue, log, func(ctx context.Context, msgs []queue.Message) (*queue.BatchResult, error) {
			result := queue.Fanout(ctx, msgs, func(ctx context.Context, msg queue.Message) error {
				cont, err := renewal.DecodeContinuation(msg.Body)
				if err != nil {
					return err
				}
				return renewal.Pump(ctx, driver, continuationQueue, &cont)
			}, log)
			return result, nil
		})
	})

	// Downgrade consumer: reconciles failed renewals against the free-tier
	// quota.
	g.Go(func() error {
		return consume(ctx, downgradeQueue, log, reconciler.ProcessBatch)
	})

	return g.Wait()
}

// consume long-polls a queue and resolves each batch with partial-failure
// reporting: only failed messages stay on the queue for redelivery.
func consume(
	ctx context.Context,
	q *queue.SQSQueue,
	log *slog.Logger,
	handle func(ctx context.Context, msgs []queue.Message) (*queue.BatchResult, error),
) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := q.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Error("queue receive failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		result, err := handle(ctx, msgs)
		if err != nil {
			// Fatal batch error: leave every message for redelivery.
			log.Error("batch processing failed", slog.String("error", err.Error()))
			continue
		}

		if err := q.Resolve(ctx, msgs, result); err != nil {
			log.Error("batch resolve failed", slog.String("error", err.Error()))
		}
	}
}
