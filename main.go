package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"videoinsight/internal/aggregate"
	"videoinsight/internal/config"
	"videoinsight/internal/curve"
	dbpkg "videoinsight/internal/db"
	"videoinsight/internal/event"
	"videoinsight/internal/http/handlers"
	"videoinsight/internal/store"
	"videoinsight/internal/synth"
	"videoinsight/internal/transport"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var st store.Store
	if cfg.DatabaseURL != "" {
		gdb, err := dbpkg.Connect(cfg)
		if err != nil {
			log.Fatalf("failed to connect database: %v", err)
		}
		dbpkg.StartRetentionWorker(gdb)
		st = dbpkg.NewStore(gdb, cfg)
		log.Printf("using postgres store")
	} else {
		st = store.NewMemory()
		log.Printf("APP_DATABASE_URL not set, using in-memory store")
	}

	aggregate.InitMetrics()
	curve.InitMetrics()
	synth.InitMetrics()

	bus := transport.NewBus(8, 1024)

	syn := synth.New(synth.Config{
		VideoCount:            cfg.VideoCount,
		UserCount:             cfg.UserCount,
		MaxConcurrentSessions: cfg.MaxConcurrentSessions,
		TimeCompression:       cfg.TimeCompression,
		Seed:                  cfg.Seed,
	}, bus)
	if err := st.UpsertVideos(context.Background(), syn.Videos()); err != nil {
		log.Fatalf("failed to seed video catalog: %v", err)
	}

	agg := aggregate.New(syn.DurationOf)
	bus.Subscribe(func(ev event.ViewerEvent) {
		if err := st.AppendEvents(context.Background(), []event.ViewerEvent{ev}); err != nil {
			log.Printf("raw log append error: %v", err)
		}
		agg.Ingest(ev)
	})

	// Flush lifetime outlives the synthesizer: the final flush runs only
	// after the bus has drained, so the last partials reach the store.
	flushCtx, stopFlush := context.WithCancel(context.Background())
	flushDone := aggregate.StartFlushWorker(flushCtx, agg, st, cfg.FlushInterval)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	synthDone := make(chan struct{})
	go func() {
		defer close(synthDone)
		syn.Run(runCtx)
	}()

	r := router.New()
	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler())
	r.GET("/v1/videos", handlers.Videos(st))
	r.GET("/v1/videos/{id}/retention-curve", handlers.RetentionCurve(st))
	r.GET("/v1/videos/{id}/dropoffs", handlers.Dropoffs(st, cfg))
	r.GET("/v1/videos/{id}/engagement", handlers.Engagement(st))
	r.GET("/v1/quality", handlers.Quality(agg))

	server := &fasthttp.Server{Handler: handlers.RequestLogger(r.Handler)}
	go func() {
		log.Printf("videoinsight listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-runCtx.Done()
	log.Printf("shutdown: waiting for open sessions to close")
	<-synthDone
	bus.Close()
	stopFlush()
	<-flushDone
	_ = server.Shutdown()
	log.Printf("shutdown complete")
}
