package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/krobus00/market-feed-service/internal/config"
	httpHandler "github.com/krobus00/market-feed-service/internal/handler/feed/http"
	"github.com/krobus00/market-feed-service/internal/infrastructure"
	"github.com/krobus00/market-feed-service/internal/service/feed"
	"github.com/krobus00/market-feed-service/internal/sink"
	"github.com/krobus00/market-feed-service/internal/store"
	"github.com/krobus00/market-feed-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// feedRestartWindow separates "crashed right after restart" (escalate) from
// a slow failure that is worth another restart.
const feedRestartWindow = 5 * time.Second

func StartConnector(cmd *cobra.Command, args []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	candleStore := store.NewCandleStore()
	feedClient := feed.NewBinanceFeed(config.Env.Feed, candleStore)

	var sinkWG sync.WaitGroup

	if config.Env.Output.File.Enabled {
		fileSink := sink.NewFileSink(config.Env.Output.File, candleStore)
		sinkWG.Add(1)
		go func() {
			defer sinkWG.Done()
			fileSink.Run(ctx)
		}()
	}

	var redisSink *sink.RedisSink
	if config.Env.Output.Redis.Enabled {
		redisCfg := config.Env.Output.Redis
		if redisCfg.Key == "" {
			redisCfg.Key = fmt.Sprintf("market_feed:latest:%s:%s", config.Env.Feed.Symbol, config.Env.Feed.Interval)
		}

		newSink, err := sink.NewRedisSink(config.Env.Redis.CacheDSN, redisCfg, candleStore)
		util.ContinueOrFatal(err)
		redisSink = newSink

		sinkWG.Add(1)
		go func() {
			defer sinkWG.Done()
			redisSink.Run(ctx)
		}()
	}

	var nc *nats.Conn
	if config.Env.Output.Stream.Enabled {
		conn, js, err := infrastructure.NewJetstream()
		util.ContinueOrFatal(err)
		nc = conn

		streamSink := sink.NewStreamSink(js, candleStore)
		util.ContinueOrFatal(streamSink.JetstreamEventInit(ctx))

		sinkWG.Add(1)
		go func() {
			defer sinkWG.Done()
			streamSink.Run(ctx)
		}()
	}

	var feedWG sync.WaitGroup
	feedWG.Add(1)
	go func() {
		defer feedWG.Done()
		superviseFeed(ctx, feedClient)
	}()

	feedHTTPHandler := httpHandler.NewFeedHTTPHandler(candleStore, feedClient, config.Env.Feed.IdleTimeout)
	httpMux := http.NewServeMux()
	feedHTTPHandler.Register(httpMux)

	httpServer := infrastructure.NewHTTPServerWithConfig(infrastructure.HTTPServerConfig{
		ShutdownTimeout: config.Env.GracefulShutdownTimeout,
	}, httpMux)

	go func() {
		err := httpServer.Start()
		if err != nil {
			logrus.Error(err)
		}
	}()

	ops := map[string]operation{
		"feed connection": func(ctx context.Context) error {
			cancel()
			feedWG.Wait()
			return nil
		},
		// sinks drain after the feed stopped writing
		"output sinks": func(ctx context.Context) error {
			cancel()
			feedWG.Wait()
			sinkWG.Wait()
			if redisSink != nil {
				return redisSink.Close()
			}
			return nil
		},
		// the root ctx is cancelled by the sibling ops, a Shutdown bound to
		// it would abort the drain immediately
		"http": func(context.Context) error {
			drainCtx, cancelDrain := context.WithTimeout(context.Background(), config.Env.GracefulShutdownTimeout)
			defer cancelDrain()
			return httpServer.Shutdown(drainCtx)
		},
	}

	if nc != nil {
		ops["nats connection"] = func(ctx context.Context) error {
			return infrastructure.CloseJetstream(nc)
		}
	}

	wait := gracefulShutdown(ctx, config.Env.GracefulShutdownTimeout, ops)

	<-wait
}

// superviseFeed restarts the feed loop if it ever returns while the service
// is still live. Run retries connection failures forever, so an exit here is
// a programming error: one restart is allowed, an immediate second exit is
// fatal.
func superviseFeed(ctx context.Context, feedClient *feed.BinanceFeed) {
	restarted := false

	for {
		started := time.Now()
		err := feedClient.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		if restarted && time.Since(started) < feedRestartWindow {
			logrus.Fatalf("feed client loop exited twice in a row: %v", err)
		}

		logrus.Errorf("feed client loop exited unexpectedly, restarting: %v", err)
		restarted = true
	}
}
