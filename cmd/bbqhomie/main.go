// bbqhomie discovers Bluetooth barbecue thermometers and publishes
// them to an MQTT broker as Homie devices.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"tinygo.org/x/bluetooth"

	"bbqhomie/bridge"
	"bbqhomie/config"
	"bbqhomie/ibbq"
)

const fwName = "bbqhomie"
const fwVersion = "0.1.0"

const scanDuration = 5 * time.Second

func main() {
	configFile := flag.String("config", config.DefaultFilename, "configuration file")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// A config file named on the command line must exist; only the
	// default location is allowed to be absent.
	configExplicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configExplicit = true
		}
	})

	if err := run(*configFile, configExplicit); err != nil {
		slog.Error("bbqhomie failed", "error", err)
		os.Exit(1)
	}
}

func run(configFile string, configExplicit bool) error {
	// A .env file is optional; deployed environments set variables directly.
	godotenv.Load()

	cfg, err := config.Load(configFile, configExplicit)
	if err != nil {
		return err
	}
	if username, ok := os.LookupEnv("MQTT_USERNAME"); ok {
		cfg.MQTT.Username = username
	}
	if password, ok := os.LookupEnv("MQTT_PASSWORD"); ok {
		cfg.MQTT.Password = password
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	slog.Info("scanning for thermometers", "duration", scanDuration)
	results, err := ibbq.Scan(adapter, scanDuration)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return errors.New("no thermometers found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, len(results))
	var wg sync.WaitGroup
	for _, result := range results {
		dev, err := ibbq.Connect(adapter, result)
		if err != nil {
			return err
		}
		if err := dev.Authenticate(); err != nil {
			dev.Disconnect()
			return err
		}
		slog.Info("authenticated", "address", dev.Address().String(), "name", dev.Name())

		b, err := bridge.New(dev, cfg, fwName, fwVersion)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer dev.Disconnect()
			if err := b.Run(ctx); err != nil {
				errChan <- fmt.Errorf("bridge %s: %w", dev.Address().String(), err)
			}
		}()
	}

	// Block until a bridge fails or we are told to shut down; either way
	// all bridges come down together.
	var runErr error
	select {
	case runErr = <-errChan:
		stop()
	case <-ctx.Done():
	}
	wg.Wait()
	return runErr
}
