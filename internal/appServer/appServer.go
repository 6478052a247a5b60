// launching the server, models, kafka, redis
package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/imagecaption/config"
	"github.com/ds124wfegd/imagecaption/internal/pkg/encoder"
	"github.com/ds124wfegd/imagecaption/internal/pkg/kafka"
	"github.com/ds124wfegd/imagecaption/internal/pkg/models"
	"github.com/ds124wfegd/imagecaption/internal/pkg/preprocess"
	"github.com/ds124wfegd/imagecaption/internal/pkg/redis"
	"github.com/ds124wfegd/imagecaption/internal/pkg/storage"
	"github.com/ds124wfegd/imagecaption/internal/pkg/styles"
	"github.com/ds124wfegd/imagecaption/internal/service"
	"github.com/ds124wfegd/imagecaption/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Address(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(logrus.StandardLogger().WriterLevel(logrus.ErrorLevel), "", 0),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetupLogging applies the log section. Release mode always logs JSON.
func SetupLogging(cfg *config.Config) {
	if cfg.Log.Format == "json" || cfg.Server.Mode == "release" {
		logrus.SetFormatter(new(logrus.JSONFormatter))
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// ModelsConfig translates the models section for models.Load.
func ModelsConfig(cfg *config.Config) models.Config {
	return models.Config{
		Backend: cfg.Models.Encoder,
		Seed:    cfg.Models.Seed,
		ONNX: encoder.ONNXConfig{
			ModelPath:   cfg.Models.ONNX.Model,
			LibraryPath: cfg.Models.ONNX.Library,
			InputName:   cfg.Models.ONNX.Input,
			OutputName:  cfg.Models.ONNX.Output,
		},
		DecodeTimeout: cfg.Pipeline.DecodeTimeout,
		DecodeSeed:    cfg.Models.DecodeSeed,
	}
}

// App holds every long-lived dependency of the service.
type App struct {
	Models   *models.Set
	Service  service.CaptionService
	Handler  http.Handler
	producer kafka.Producer
	closers  []func() error
}

// NewApp loads the models and wires the pipeline. Model load failures leave
// the app running degraded; /health reports them.
func NewApp(cfg *config.Config) *App {
	store := storage.NewFileStorage(cfg.Models.Dir)

	set, err := models.Load(ModelsConfig(cfg), store)
	if err != nil {
		logrus.WithError(err).Error("Failed to load models, serving degraded")
		set = models.Unavailable(err)
	}

	producer := kafka.NewProducer(kafka.Config{
		Enabled: cfg.Kafka.Enabled,
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
	})

	app := &App{Models: set, producer: producer}
	app.closers = append(app.closers, set.Close, producer.Close)

	routeOpts := transport.RouteOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      cfg.Redis.RateLimit,
		RateWindow:     cfg.Redis.RateWindow,
	}
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(&cfg.Redis)
		if err != nil {
			logrus.WithError(err).Warn("Rate limiting disabled")
		} else {
			routeOpts.Counter = redis.NewCounter(client, "captioner:ratelimit")
			app.closers = append(app.closers, client.Close)
		}
	}

	app.Service = service.NewCaptionService(set, styles.Default(), preprocess.NewPreprocessor(cfg.Pipeline.MaxBytes), producer, service.Options{
		MaxBatchSize:  cfg.Pipeline.MaxBatchSize,
		BatchWorkers:  cfg.Pipeline.BatchWorkers,
		MaxInFlight:   cfg.Pipeline.MaxInFlight,
		AdmissionWait: cfg.Pipeline.AdmissionWait,
	})

	handler := transport.NewCaptionHandler(app.Service, cfg.Pipeline.MaxBytes, cfg.Pipeline.DefaultStyle)
	app.Handler = transport.InitRoutes(handler, routeOpts)

	return app
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewServer runs the HTTP service until SIGINT or SIGTERM.
func NewServer(cfg *config.Config) {

	SetupLogging(cfg)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	app := NewApp(cfg)

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, app.Handler); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("addr", cfg.Address()).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	if err := app.Close(); err != nil {
		logrus.Errorf("error occured on releasing resources: %s", err.Error())
	}
}
