package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	swaggerfiles "github.com/swaggo/files"
	swagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/bikeweatherapp/bike-weather-api/docs"
	"github.com/bikeweatherapp/bike-weather-api/internal/cache"
	"github.com/bikeweatherapp/bike-weather-api/internal/config"
	"github.com/bikeweatherapp/bike-weather-api/internal/dispatch"
	"github.com/bikeweatherapp/bike-weather-api/internal/emailer"
	adminHandler "github.com/bikeweatherapp/bike-weather-api/internal/handlers/admin"
	digestHandler "github.com/bikeweatherapp/bike-weather-api/internal/handlers/digest"
	subscriptionHandler "github.com/bikeweatherapp/bike-weather-api/internal/handlers/subscription"
	"github.com/bikeweatherapp/bike-weather-api/internal/metrics"
	"github.com/bikeweatherapp/bike-weather-api/internal/models"
	"github.com/bikeweatherapp/bike-weather-api/internal/repository/sqlite"
	digestService "github.com/bikeweatherapp/bike-weather-api/internal/services/digest"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/forecast"
	serviceLogger "github.com/bikeweatherapp/bike-weather-api/internal/services/logger"
	"github.com/bikeweatherapp/bike-weather-api/internal/services/subscribers"
)

const (
	timeoutDuration = 5 * time.Second

	fileMode = 0o644
)

type App struct {
	cfg config.Config
	log zerolog.Logger
}

type ServiceContainer struct {
	Orchestrator      *dispatch.Orchestrator
	Scheduler         *dispatch.Scheduler
	SubscriberService *subscribers.Service
	Renderer          *digestService.Renderer
	SubRepository     *sqlite.SubscriberRepository
	Metrics           *metrics.Metrics

	// PreviewForecasts is the redis-cached (when configured) client behind
	// the preview endpoint. The dispatcher holds its own uncached client.
	PreviewForecasts forecastClient

	Router *gin.Engine
	Srv    *http.Server
	Db     *sql.DB
}

type forecastClient interface {
	FetchByLocation(ctx context.Context, loc models.Location) (models.LocationForecast, error)
}

func New(cfg config.Config, logger zerolog.Logger) *App {
	return &App{
		cfg: cfg,
		log: logger.With().Str("component", "App").Logger(),
	}
}

func (a *App) Init() ServiceContainer {
	a.log.Info().Str("address", a.cfg.ServerAddress()).Msg("initializing application")

	db, err := CreateSqliteDb(a.cfg.DB.Dialect, a.cfg.DB.Source)
	if err != nil {
		a.log.Panic().Err(err).Msg("failed to open database")
	}

	if err := InitSqliteDb(db, a.cfg.DB.Dialect, a.cfg.DB.MigrationsPath); err != nil {
		a.log.Panic().Err(err).Msg("failed to run migrations")
	}

	m := metrics.New("bikeweather", db, a.cfg.DB.Source)

	router := gin.Default()
	router.Use(m.HTTPMiddleware())
	router.LoadHTMLGlob(filepath.Join(a.cfg.TemplatesDir, "*.html"))

	apiServer := &http.Server{
		Addr:        a.cfg.ServerAddress(),
		Handler:     router,
		ReadTimeout: time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
	}

	upstreamLogger, err := newFileLogger(a.cfg.LogsPath)
	if err != nil {
		a.log.Panic().Err(err).Msg("failed to create upstream request logger")
	}

	httpLogClient := &http.Client{
		Transport: serviceLogger.NewRoundTripper(upstreamLogger),
		Timeout:   a.cfg.OpenWeather.Timeout,
	}

	openWeatherClient := forecast.NewOpenWeatherClient(
		a.cfg.OpenWeather.APIKey,
		a.cfg.OpenWeather.GeoURL,
		a.cfg.OpenWeather.ForecastURL,
		httpLogClient,
		a.log,
	)
	breakered := forecast.NewBreakerClient("openweather", openWeatherClient)

	var previewForecasts forecastClient = breakered
	if a.cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
		})
		forecastCache := cache.NewMetricsDecorator[models.LocationForecast](
			cache.NewRedisClient[models.LocationForecast](redisClient, a.log, a.cfg.Redis.TTL),
			m,
		)
		previewForecasts = forecast.NewCachedClient(breakered, forecastCache, a.log)
	}

	subRepository := sqlite.NewSubscriberRepository(db, a.log, m)

	renderer, err := digestService.NewRenderer(a.cfg.TemplatesDir, a.cfg.BaseURL, a.log)
	if err != nil {
		a.log.Panic().Err(err).Msg("failed to build digest renderer")
	}

	smtpService := emailer.NewSMTPService(&a.cfg, a.log)

	orchestrator := dispatch.New(
		subRepository,
		breakered,
		renderer,
		smtpService,
		a.log,
		m,
		dispatch.Config{
			MaxConcurrentSends: a.cfg.Dispatch.MaxConcurrentSends,
			RetryDelay:         a.cfg.Dispatch.RetryDelay,
			FetchTimeout:       a.cfg.Dispatch.FetchTimeout,
			SendTimeout:        a.cfg.Dispatch.SendTimeout,
		},
	)

	return ServiceContainer{
		Orchestrator:      orchestrator,
		Scheduler:         dispatch.NewScheduler(orchestrator, a.cfg.Dispatch.Cron, a.log),
		SubscriberService: subscribers.NewService(subRepository, orchestrator, a.log),
		Renderer:          renderer,
		SubRepository:     subRepository,
		Metrics:           m,
		PreviewForecasts:  previewForecasts,

		Router: router,
		Srv:    apiServer,
		Db:     db,
	}
}

func (a *App) Start(c ServiceContainer) error {
	a.log.Info().Str("address", a.cfg.ServerAddress()).Msg("starting server")

	subHandler := subscriptionHandler.NewHandler(c.SubscriberService)
	dgHandler := digestHandler.NewHandler(c.Orchestrator, c.PreviewForecasts, c.Renderer)
	admHandler := adminHandler.NewHandler(c.SubRepository)

	api := c.Router.Group("/api")
	{
		api.POST("/subscribe", subHandler.Subscribe)
		api.GET("/unsubscribe/:token", subHandler.Unsubscribe)
		api.GET("/preview", dgHandler.Preview)
		api.POST("/dispatch", adminHandler.KeyAuth(a.cfg.AdminKey), dgHandler.Dispatch)

		adm := api.Group("/admin", adminHandler.KeyAuth(a.cfg.AdminKey))
		adm.GET("/subscribers", admHandler.ListSubscribers)
	}
	c.Router.GET("/metrics", gin.WrapH(c.Metrics.Handler()))
	c.Router.GET("/swagger/*any", swagger.WrapHandler(swaggerfiles.Handler))

	if err := c.Scheduler.Start(context.Background()); err != nil {
		return err
	}

	if err := c.Srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Stop(c ServiceContainer) error {
	a.log.Info().Msg("stopping application")

	c.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
	defer cancel()

	if err := c.Srv.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("HTTP shutdown error")
	} else {
		a.log.Info().Msg("HTTP server stopped")
	}

	if err := c.Db.Close(); err != nil {
		a.log.Error().Err(err).Msg("DB close error")
	} else {
		a.log.Info().Msg("database closed")
	}

	a.log.Info().Msg("shutdown complete")
	return nil
}

func CreateSqliteDb(dialect, name string) (*sql.DB, error) {
	if name == "" {
		return nil, errors.New("database name cannot be empty")
	}
	connectionString := "file:" + name + "?cache=shared&mode=rwc"
	db, err := sql.Open(dialect, connectionString)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

func InitSqliteDb(db *sql.DB, dialect, migrationPath string) error {
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	if err := goose.Up(db, migrationPath); err != nil {
		return err
	}

	return nil
}

func newFileLogger(filePath string) (*zap.Logger, error) {
	file, err := os.OpenFile(filepath.Clean(filePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return nil, err
	}

	writer := zapcore.AddSync(file)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		writer,
		zap.InfoLevel,
	)
	return zap.New(core), nil
}
