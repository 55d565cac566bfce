package server

import (
	"context"
	"time"

	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/internal/repository"
	"OrgTrader/internal/service/wsfeed"
	pkgkafka "OrgTrader/pkg/kafka"
)

// Source produces bars in the background until ctx ends.
type Source interface {
	Run(ctx context.Context) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) error

func (f SourceFunc) Run(ctx context.Context) error { return f(ctx) }

// Ingest is the feed the processor reads plus the sources that fill it.
type Ingest struct {
	Feed    domrepo.BarFeed
	Sources []Source
}

const drainTimeout = 10 * time.Second

// KafkaSource consumes the bars topic into asm until ctx ends. Stopping the consumer cancels a
// worker blocked on a full feed; the feed is then closed and the pending snapshot flushed,
// which reaches the archive only since nothing reads the feed any more.
func KafkaSource(consumer *pkgkafka.Consumer, asm *repository.BarAssembler, feed *repository.ChannelFeed) Source {
	return SourceFunc(func(ctx context.Context) error {
		defer feed.Close()
		if err := consumer.RegisterHandler(asm); err != nil {
			return err
		}
		if err := consumer.Start(); err != nil {
			return err
		}
		<-ctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		err := consumer.Stop(stopCtx)
		feed.Close()
		_ = asm.Flush(stopCtx)
		return err
	})
}

// StreamSource runs a websocket stream into feed through asm.
func StreamSource(stream *wsfeed.Stream, asm *repository.BarAssembler, feed *repository.ChannelFeed) Source {
	return SourceFunc(func(ctx context.Context) error {
		defer feed.Close()
		err := stream.Run(ctx)
		feed.Close()

		flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		_ = asm.Flush(flushCtx)
		return err
	})
}
