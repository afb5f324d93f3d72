// Command meal-collector receives meal start/end signals over HTTP (and
// optionally MQTT and Kafka) and serves the current meal status.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/meal-sensor/internal/collector"
	"github.com/sweeney/meal-sensor/internal/config"
)

func main() {
	configPath := flag.String("config", "/etc/meal-sensor.yaml", "YAML configuration file (missing file uses defaults)")
	addr := flag.String("addr", "", "HTTP listen address (overrides collector.addr)")
	broker := flag.String("broker", "", "MQTT broker URL to subscribe to, e.g. tcp://192.168.1.200:1883 (overrides collector.mqtt_broker)")
	kafkaBrokers := flag.String("kafka", "", "Comma-separated Kafka brokers (overrides collector.kafka_brokers)")
	alertAfter := flag.Duration("alert-after", 0, "Flag the status as overdue after this long without a meal (overrides collector.alert_after)")
	verbose := flag.Bool("v", false, "Debug logging")

	flag.Parse()

	logLevel := log.LvlInfo
	if *verbose {
		logLevel = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(logLevel, log.StdoutHandler))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Crit("load config", "err", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Collector.Addr = *addr
		case "broker":
			cfg.Collector.MQTTBroker = *broker
		case "kafka":
			cfg.Collector.KafkaBrokers = splitList(*kafkaBrokers)
		case "alert-after":
			cfg.Collector.AlertAfter = *alertAfter
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.Collector); err != nil {
		log.Crit("fatal", "err", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(ctx context.Context, cfg config.CollectorConfig) error {
	if cfg.Addr == "" {
		return errors.New("collector address is required")
	}

	store := collector.NewStore(cfg.AlertAfter, time.Now())
	srv := collector.NewServer(cfg.Addr, store, os.Stdout)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("collector listening", "addr", cfg.Addr, "alert_after", cfg.AlertAfter)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.MQTTBroker != "" {
		client, err := connectMQTT(cfg.MQTTBroker, store)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			client.Disconnect(1000)
			return nil
		})
	}

	if len(cfg.KafkaBrokers) > 0 {
		reader := collector.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup)
		log.Info("consuming kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
		g.Go(func() error {
			return collector.ConsumeKafka(ctx, reader, store)
		})
	}

	err := g.Wait()
	log.Info("collector stopped")
	return err
}

// connectMQTT subscribes store to the meal topic. Subscriptions are restored
// on every reconnect.
func connectMQTT(broker string, store *collector.Store) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("meal-collector-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c paho.Client) {
			log.Info("mqtt connected", "broker", broker)
			if err := collector.SubscribeMQTT(c, store); err != nil {
				log.Error("mqtt subscribe", "err", err)
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", "err", err)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}
