package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kilnfire/internal/engine"
	"kilnfire/internal/hal"
	"kilnfire/internal/handlers"
	"kilnfire/internal/logger"
	"kilnfire/internal/metrics"
	"kilnfire/internal/repository"
	"kilnfire/internal/repository/db"
	"kilnfire/internal/safety"
	"kilnfire/internal/sensor"
	"kilnfire/internal/server"
	"kilnfire/internal/service"
	"kilnfire/internal/sim"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

const plantStepPeriod = 100 * time.Millisecond

func main() {
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// Non-volatile stores.
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		dbPath = "kilnfire.db"
	}
	sqldb, err := db.InitDB(dbPath)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqldb.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	repos := repository.NewRepository(sqldb)

	dataDir := viper.GetString("data.dir")
	if dataDir == "" {
		dataDir = "data"
	}
	histStore, err := repository.NewHistoryStore(dataDir, log)
	if err != nil {
		log.Fatalw("failed to init history store", "err", err)
	}

	// Hardware: this build drives the simulated plant; real deployments
	// bind GPIO/SPI implementations of the same interfaces.
	clock := hal.NewSystemClock()
	plant := sim.NewPlant(viper.GetFloat64("sim.start_temp_c"))
	bus := sim.NewBus(plant)
	ssrPin := &sim.Pin{}
	ventPin := &sim.Pin{}

	sampler := sensor.NewSampler(bus, clock, log)
	supervisor := safety.NewSupervisor(ssrPin, ventPin, clock, sampler,
		viper.GetFloat64("safety.max_temp_c"), log)

	monitoring, err := service.NewMonitoringService(repos.Settings, supervisor, log)
	if err != nil {
		log.Fatalw("failed to init settings", "err", err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	notifier := service.NewWebhookNotifier(monitoring, log)

	eng := engine.New(engine.Deps{
		Clock:    clock,
		Sensor:   sampler,
		Safety:   supervisor,
		History:  histStore,
		Settings: monitoring,
		Tuning:   repos.Tuning,
		Notifier: notifier,
		Metrics:  m,
		Log:      log,
	})

	services := service.NewService(service.Deps{
		Repos:      repos,
		HistStore:  histStore,
		Engine:     eng,
		Safety:     supervisor,
		Monitoring: monitoring,
		SigningKey: viper.GetString("auth.signing_key"),
		Log:        log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := services.Profiles.SeedDefaults(ctx); err != nil {
		log.Warnw("default profile seeding failed", "err", err)
	}

	// Control tasks: sampler 250 ms, supervisor 500 ms, engine 1 s, plus the
	// simulated plant integrating the SSR pin state.
	go sampler.Run(ctx)
	go supervisor.Run(ctx)
	go eng.Run(ctx)
	go runPlant(ctx, plant, ssrPin)

	apiHandler := handlers.NewHandler(services, log)
	srv := &server.Server{}
	go func() {
		port := viper.GetString("port")
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, apiHandler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()

	waitForShutdown(cancel, srv, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// runPlant integrates the two-stage element/chamber model against the SSR pin.
func runPlant(ctx context.Context, plant *sim.Plant, ssr *sim.Pin) {
	t := time.NewTicker(plantStepPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			conduction := 0.0
			if ssr.Level() {
				conduction = 1.0
			}
			plant.Step(plantStepPeriod.Seconds(), conduction)
		}
	}
}

// waitForShutdown blocks on termination signals, then stops the background
// tasks and drains the HTTP server.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
