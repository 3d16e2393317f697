package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"github.com/automoto/netcode/bandwidth"
	"github.com/automoto/netcode/interest"
	"github.com/automoto/netcode/server/core"
	"github.com/automoto/netcode/transport"
)

func main() {
	addr := flag.String("addr", ":7373", "listen address")
	tickRate := flag.Int("tickrate", 60, "server tick rate (updates per second)")
	version := flag.String("version", "dev", "required client version")
	levelPath := flag.String("level", "", "TMX level file (empty = flat 4096x2048 world)")
	grace := flag.Duration("grace", 10*time.Second, "reconnect grace period")
	bytesPerSec := flag.Float64("bandwidth", 64*1024, "per-client send budget, bytes/second")
	interestRadius := flag.Float64("radius", 512, "interest radius in world units")
	profileMode := flag.String("profile", "", "enable profiling: cpu or mem")
	flag.Parse()

	switch *profileMode {
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop()
	}

	var level *core.Level
	if *levelPath != "" {
		var err error
		level, err = core.LoadLevel(os.DirFS("."), *levelPath)
		if err != nil {
			log.Fatalf("load level: %v", err)
		}
	} else {
		level = core.EmptyLevel(4096, 2048)
	}

	cfg := core.DefaultConfig()
	cfg.TickRate = *tickRate
	cfg.Version = *version
	cfg.GracePeriod = *grace
	cfg.Interest = interest.Config{Radius: *interestRadius}
	cfg.Bandwidth = bandwidth.Config{BytesPerSecond: *bytesPerSec}

	ws := transport.NewWSServer(*addr)
	server, err := core.NewServer(cfg, ws, level)
	if err != nil {
		log.Fatalf("server setup: %v", err)
	}

	loop := core.NewGameLoop(server)
	go loop.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("[server] shutting down")
		loop.Stop()
		if err := ws.Close(); err != nil {
			log.Printf("[server] close transport: %v", err)
		}
		os.Exit(0)
	}()

	log.Printf("[server] listening on %s (tick rate %d/s, version %q)", *addr, *tickRate, *version)
	if err := ws.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
