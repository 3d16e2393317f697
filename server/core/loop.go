package core

import (
	"log"
	"time"
)

// GameLoop drives the server at a fixed tick rate.
type GameLoop struct {
	server   *Server
	tickRate int
	stopChan chan struct{}
}

func NewGameLoop(server *Server) *GameLoop {
	return &GameLoop{
		server:   server,
		tickRate: server.cfg.TickRate,
		stopChan: make(chan struct{}),
	}
}

// Run blocks, ticking the server until Stop is called.
func (g *GameLoop) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	log.Printf("[server] game loop started at %d ticks/second", g.tickRate)

	for {
		select {
		case <-g.stopChan:
			log.Println("[server] game loop stopped")
			return
		case now := <-ticker.C:
			g.server.Tick(now)
		}
	}
}

func (g *GameLoop) Stop() {
	close(g.stopChan)
}
