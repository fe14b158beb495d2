package app

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"ferry77-dispatch/internal/apperr"
	"ferry77-dispatch/internal/config"
	"ferry77-dispatch/internal/gateway/geoloc"
	"ferry77-dispatch/internal/logx"
	"ferry77-dispatch/internal/repository"
	"ferry77-dispatch/internal/service/orders"
	"ferry77-dispatch/internal/transport/kafka"
)

type geoPortIn struct {
	dig.In
	Cfg     *config.Config
	Logger  logx.Logger
	Retries prometheus.Counter `name:"gateway_retries_total"`
}

// newGeoPort builds the geocoding chain: HTTP gateway wrapped in retries.
// Returns nil when no endpoint is configured, which disables backfill.
func newGeoPort(in geoPortIn) orders.GeoPort {
	gw := geoloc.NewHTTPGateway(in.Cfg.Geoloc.BaseURL, in.Cfg.Geoloc.APIKey, in.Cfg.Geoloc.Timeout)
	if gw == nil {
		return nil
	}
	return geoloc.NewRetryingProvider(gw, in.Logger, in.Retries, geoloc.RetryConfig{
		MaxAttempts: in.Cfg.Geoloc.MaxAttempts,
		BaseDelay:   in.Cfg.Geoloc.BaseDelay,
		MaxDelay:    in.Cfg.Geoloc.MaxDelay,
	})
}

func newOrdersProcessor(jobs *repository.JobRepo, geo orders.GeoPort, logger logx.Logger) *orders.Processor {
	return orders.NewProcessor(jobs, geo, logger)
}

// makeOrdersHandle adapts the processor to the consumer. Invalid events can
// never succeed on redelivery, so they are marked permanent and skipped.
func makeOrdersHandle(p *orders.Processor) kafka.HandleFunc {
	return func(ctx context.Context, e orders.Event) error {
		err := p.Handle(ctx, e)
		if errors.Is(err, apperr.ErrInvalid) {
			return kafka.Permanent(err)
		}
		return err
	}
}

func newOrdersConsumer(cfg *config.Config, logger logx.Logger, h kafka.HandleFunc) (*kafka.Consumer, error) {
	return kafka.NewConsumer(logger, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topic, h)
}
