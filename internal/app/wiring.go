package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"MDMWatch/internal/classifier"
	"MDMWatch/internal/config"
	"MDMWatch/internal/domain"
	"MDMWatch/internal/infrastructure/graph"
	"MDMWatch/internal/infrastructure/natsbus"
	"MDMWatch/internal/infrastructure/notify"
	"MDMWatch/internal/infrastructure/storage"
	"MDMWatch/internal/infrastructure/telegram"
	"MDMWatch/internal/infrastructure/webhook"
	"MDMWatch/internal/paging"
	"MDMWatch/internal/ports"
	"MDMWatch/internal/usecase"
)

func noopClose() error { return nil }

// openStore selects the state backend named in configuration.
func openStore(ctx context.Context, cfg config.StateConfig) (ports.StateStore, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemoryStore(), noopClose, nil
	case config.BackendFile:
		store, err := storage.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("open file state: %w", err)
		}
		return store, noopClose, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		return storage.NewRedisStore(client, cfg.Redis.Prefix, cfg.Redis.TTL), client.Close, nil
	case config.BackendPostgres:
		store, err := storage.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendS3:
		store, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:   cfg.S3.Bucket,
			Prefix:   cfg.S3.Prefix,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, noopClose, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}

// buildNotifier fans out to every configured target. With none configured,
// alerts are written to the log so runs stay observable.
func buildNotifier(cfg config.Config, client *http.Client, logger *slog.Logger) (ports.Notifier, func() error, error) {
	n := cfg.Notifications
	var targets []notify.Target
	closer := noopClose

	if n.Mail.Enabled() {
		targets = append(targets, notify.Target{
			Name:     "mail",
			Notifier: graph.NewMailer(client, cfg.Graph.BaseURL, n.Mail.Sender, n.Mail.Recipients),
		})
	}
	if n.Telegram.Enabled() {
		targets = append(targets, notify.Target{
			Name:     "telegram",
			Notifier: telegram.NewNotifier(n.Telegram.APIBase, n.Telegram.BotToken, n.Telegram.ChatID),
		})
	}
	if n.Webhook.URL != "" {
		targets = append(targets, notify.Target{
			Name: "webhook",
			Notifier: webhook.NewNotifier(webhook.Config{
				URL:     n.Webhook.URL,
				Token:   n.Webhook.Token,
				Timeout: n.Webhook.Timeout,
			}),
		})
	}
	if n.NATS.URL != "" {
		pub, err := natsbus.NewPublisher(n.NATS.URL, n.NATS.Subject)
		if err != nil {
			return nil, nil, err
		}
		targets = append(targets, notify.Target{Name: "nats", Notifier: pub})
		closer = pub.Close
	}

	if len(targets) == 0 {
		logger.Warn("no notification target configured, alerts go to the log only")
		return notify.NewLog(logger), closer, nil
	}
	fanout := notify.NewFanout(logger, targets...)
	logger.Debug("notification targets", "targets", fanout.Targets())
	return fanout, closer, nil
}

// buildChecks resolves each configured check's classifier from the registry.
func buildChecks(reg *classifier.Registry, cfgs []config.CheckConfig, fetcher *paging.Fetcher, logger *slog.Logger) ([]usecase.Check, error) {
	checks := make([]usecase.Check, 0, len(cfgs))
	for _, c := range cfgs {
		cls, err := reg.Build(c.Classifier, classifier.Params{
			TimeField:          c.TimeField,
			Threshold:          config.Hours(c.ThresholdHours),
			ExpiringSoonWindow: config.Hours(c.ExpiringSoonHours),
			Field:              c.Field,
			Values:             c.Values,
		})
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", c.Name, err)
		}

		title := c.Title
		if title == "" {
			title = c.Name
		}
		checks = append(checks, usecase.Check{
			Name:       c.Name,
			Title:      title,
			URI:        c.URI,
			Fetcher:    fetcher.WithFormat(paging.PageFormat{IDField: c.IDField, LabelField: c.LabelField}),
			Classifier: cls,
			Policy: domain.EscalationPolicy{
				UrgentThreshold:     config.Hours(c.UrgentHours),
				EscalationThreshold: config.Hours(c.EscalationHours),
				ForceNotification:   c.ForceNotification,
			},
		})
		logger.Debug("check configured", "check", c.Name, "classifier", c.Classifier, "uri", c.URI)
	}
	return checks, nil
}
