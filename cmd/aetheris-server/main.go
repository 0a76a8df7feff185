package main

import (
	"context"
	"flag"

	"github.com/xlab/closer"
	"go.uber.org/zap"

	"aetheris/internal/config"
	"aetheris/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	closer.Bind(cancel)

	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
		closer.Close()
	}()

	closer.Hold()
}
