package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"streamlet-api/api"
	"streamlet-api/domain"
	"streamlet-api/routing"
	"streamlet-api/storage"
)

const requestBodyLimit = 64 * 1024

func main() {
	logger := log.New()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		logger.SetLevel(log.DebugLevel)
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Errorf("tracer shutdown: %v", err)
		}
	}()

	var sink domain.EventSink
	var dispatcher *api.EventDispatcher
	if connStr := os.Getenv("STORAGE_CONNECTION_STRING"); connStr != "" {
		queueName := os.Getenv("EVENTS_QUEUE")
		if queueName == "" {
			logger.Fatal("missing EVENTS_QUEUE")
		}
		pub, err := storage.NewQueuePublisher(connStr, queueName)
		if err != nil {
			logger.Fatalf("event queue: %v", err)
		}
		dispatcher = api.NewEventDispatcher(pub, logger)
		sink = dispatcher
	}
	todos := domain.NewTodoService(storage.NewMemory(), sink)

	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		ttl := 24 * time.Hour
		if v := os.Getenv("IDEMPOTENCY_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				logger.Fatalf("invalid IDEMPOTENCY_TTL: %q", v)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(redis.NewClient(redisOptions(redisConn)), ttl)
	} else {
		logger.Info("REDIS_CONNECTION_STRING not set; Idempotency-Key disabled")
	}

	routingCfg, err := routing.LoadConfig(os.Getenv("ROUTING_CONFIG"))
	if err != nil {
		logger.Fatalf("routing: %v", err)
	}
	if v := os.Getenv("ROUTING_ENGINE_CONFIG"); v != "" {
		routingCfg.EngineConfig = v
	}
	if v := os.Getenv("ROUTING_ENGINE_URL"); v != "" {
		routingCfg.ServiceURL = v
	}
	gateway := routing.NewGateway(routingCfg, routing.HTTPEngineFactory(routingCfg.ServiceURL, &http.Client{}), logger)

	appName := os.Getenv("APP_NAME")
	if appName == "" {
		appName = "Streamlet Routing Server"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware(requestBodyLimit))
	if pp, err := strconv.ParseBool(os.Getenv("PPROF")); err == nil && pp {
		pprof.Register(e)
	}
	api.Register(e, todos, gateway, deduper, logger, appName)

	listenAddr := ":8000"
	if v, ok := os.LookupEnv("LISTEN_ADDR"); ok && v != "" {
		listenAddr = v
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	if dispatcher != nil {
		dispatcher.Close()
	}
}

// redisOptions accepts a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts
}
