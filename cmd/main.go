package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"pantry-assistant/handler"
	"pantry-assistant/internal/contextstore"
	"pantry-assistant/internal/integrations/openai"
	"pantry-assistant/internal/integrations/paramstore"
	"pantry-assistant/internal/integrations/whatsapp"
	"pantry-assistant/internal/inventory"
	"pantry-assistant/internal/quota"
	"pantry-assistant/internal/repository"
	"pantry-assistant/internal/telemetry"
	"pantry-assistant/internal/usecase"
)

// contextGrace is how long an expired context lingers before the backing
// store evicts it.
const contextGrace = time.Hour

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	phoneNumberID := mustEnv("WHATSAPP_PHONE_NUMBER_ID")
	contextBackend := envString("CONTEXT_BACKEND", "dynamodb")
	contextTTL := time.Duration(envInt("CONTEXT_TTL_MINUTES", 10)) * time.Minute
	ratePerMinute := envInt("RATE_LIMIT_PER_MINUTE", 20)
	maxMessageLen := envInt("MAX_MESSAGE_LENGTH", 1000)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	rateLimiter, err := repository.NewRateLimiter(stateClient, ratePerMinute)
	if err != nil {
		slog.Error("failed to create rate limiter", "err", err)
		os.Exit(1)
	}
	contexts, err := newContextStore(contextBackend, stateClient)
	if err != nil {
		slog.Error("failed to create context store", "backend", contextBackend, "err", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	sender, err := whatsapp.NewClient(ssmClient, paramPrefix, phoneNumberID)
	if err != nil {
		slog.Error("failed to create WhatsApp client", "err", err)
		os.Exit(1)
	}

	// ---- Services ----
	products, err := inventory.NewService(stateClient, openaiClient)
	if err != nil {
		slog.Error("failed to create inventory service", "err", err)
		os.Exit(1)
	}
	usage, err := quota.NewLimiter(stateClient, sender, quota.WithLogger(logger))
	if err != nil {
		slog.Error("failed to create usage limiter", "err", err)
		os.Exit(1)
	}

	dispatcher, err := usecase.NewDispatcher(usecase.Deps{
		Rate:         rateLimiter,
		Identities:   stateClient,
		Activity:     stateClient,
		Contexts:     contexts,
		Usage:        usage,
		Classifier:   openaiClient,
		Reclassifier: openaiClient,
		Inventory:    products,
		Entitlements: stateClient,
		Recipes:      openaiClient,
		Sender:       sender,
		Telemetry:    telemetry.NewSink(logger),
	},
		usecase.WithLogger(logger),
		usecase.WithContextTTL(contextTTL),
		usecase.WithMaxMessageLength(maxMessageLen),
	)
	if err != nil {
		slog.Error("failed to create dispatcher", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(dispatcher, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func newContextStore(backend string, state *repository.Client) (usecase.ContextStore, error) {
	switch backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: mustEnv("REDIS_ADDR")})
		return contextstore.NewRedis(rdb, "", contextGrace)
	case "memory":
		return contextstore.NewMemory(contextGrace), nil
	case "dynamodb", "":
		return state, nil
	default:
		slog.Error("unknown context backend", "backend", backend)
		os.Exit(1)
		return nil, nil
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
