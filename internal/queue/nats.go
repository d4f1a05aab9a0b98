// Regsync - Global Registry Synchronization Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/regsync

//go:build nats

package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/regsync/internal/config"
)

// NewNATS builds a JetStream backend. With cfg.NATS.Embedded it starts an
// in-process server first and connects to it.
func NewNATS(ctx context.Context, cfg config.QueueConfig, logger watermill.LoggerAdapter) (Backend, error) {
	var b Backend
	url := cfg.NATS.URL

	if cfg.NATS.Embedded {
		srv, err := NewEmbeddedServer(cfg.NATS)
		if err != nil {
			return Backend{}, err
		}
		b.closers = append(b.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		url = srv.ClientURL()
	}

	if err := ensureStream(ctx, url, cfg); err != nil {
		_ = b.Close()
		return Backend{}, err
	}

	pub, err := newPublisher(url, cfg.NATS, logger)
	if err != nil {
		_ = b.Close()
		return Backend{}, err
	}
	b.Publisher = pub
	b.closers = append(b.closers, pub.Close)

	sub, err := newSubscriber(url, cfg, logger)
	if err != nil {
		_ = b.Close()
		return Backend{}, err
	}
	b.Subscriber = sub
	b.closers = append(b.closers, sub.Close)
	return b, nil
}

func connectionOptions(cfg config.NATSConfig, logger watermill.LoggerAdapter, role string) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error(role+" disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info(role+" reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

// trackingPublisher sets the JetStream message id so the stream's duplicate
// window drops re-published copies.
type trackingPublisher struct {
	message.Publisher
}

func (p trackingPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
			msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
		}
	}
	return p.Publisher.Publish(topic, msgs...)
}

func newPublisher(url string, cfg config.NATSConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: connectionOptions(cfg, logger, "publisher"),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			TrackMsgId: true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}
	return trackingPublisher{Publisher: pub}, nil
}

func newSubscriber(url string, cfg config.QueueConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	n := cfg.NATS
	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.HandlerRetries + 2),
		natsgo.AckWait(n.AckWait),
		natsgo.DeliverNew(),
	}
	autoProvision := true
	if n.Stream != "" {
		subOpts = append(subOpts, natsgo.BindStream(n.Stream))
		autoProvision = false
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: n.QueueGroup,
		SubscribersCount: n.SubscribersCount,
		AckWaitTimeout:   n.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      connectionOptions(n, logger, "subscriber"),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision:    autoProvision,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    n.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}
	return sub, nil
}

// ensureStream creates or updates the stream holding the task and
// dead-letter subjects. It is idempotent.
func ensureStream(ctx context.Context, url string, cfg config.QueueConfig) error {
	if cfg.NATS.Stream == "" {
		return nil
	}
	nc, err := natsgo.Connect(url)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create jetstream context: %w", err)
	}

	streamCfg := jetstream.StreamConfig{
		Name:       cfg.NATS.Stream,
		Subjects:   []string{cfg.Topic, cfg.DeadLetterTopic},
		Retention:  jetstream.LimitsPolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		MaxAge:     7 * 24 * time.Hour,
		Duplicates: 2 * time.Minute,
	}

	_, err = js.Stream(ctx, streamCfg.Name)
	switch {
	case err == nil:
		if _, err := js.UpdateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("update stream %s: %w", streamCfg.Name, err)
		}
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, streamCfg); err != nil {
			return fmt.Errorf("create stream %s: %w", streamCfg.Name, err)
		}
	default:
		return fmt.Errorf("check stream %s: %w", streamCfg.Name, err)
	}
	return nil
}
