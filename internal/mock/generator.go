// Package mock feeds synthetic browser signals into the detection engine so
// the UI can be developed and demoed without a real extension attached.
package mock

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/driftwatch/backend/internal/detect"
	"github.com/driftwatch/backend/internal/session"
)

var workSites = []string{
	"https://docs.google.com/document/d/demo-report",
	"https://github.com/driftwatch/backend/pulls",
	"https://stackoverflow.com/questions/demo",
	"https://en.wikipedia.org/wiki/Focus_(cognition)",
}

var distractingSites = []string{
	"https://youtube.com/watch?v=dQw4w9WgXcQ",
	"https://twitter.com/home",
	"https://reddit.com/r/all",
	"https://amazon.com/deals",
	"https://netflix.com/browse",
}

// Generator replays a repeating behavior script: a stretch of productive
// work, a drift to a distracting site, a return, then a long tab hide that
// crosses the visibility-arm threshold. At the default 500ms tick the hide
// phase lasts 7s, comfortably past the 5s arm.
type Generator struct {
	engine   *detect.Engine
	interval time.Duration
}

func NewGenerator(engine *detect.Engine, interval time.Duration) *Generator {
	return &Generator{engine: engine, interval: interval}
}

func (g *Generator) Start(ctx context.Context) {
	g.engine.StartVoyage("write the quarterly project report", []string{"docs.google.com"})
	log.Println("[mock] synthetic signal generator started")
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.step(tick)
			tick++
		}
	}
}

// step advances the script by one tick. The cycle repeats every 40 ticks so
// every phase stays reachable no matter when an observer connects.
func (g *Generator) step(tick int) {
	phase := tick % 40

	// Input keeps flowing except during the hidden-tab phase, with a little
	// jitter so the activity timestamp looks organic.
	if (phase < 22 || phase >= 36) && rand.Intn(10) < 8 {
		g.engine.InputActivity()
	}

	switch phase {
	case 2:
		g.engine.Navigated(workSites[rand.Intn(len(workSites))])
	case 10:
		g.engine.Navigated(distractingSites[rand.Intn(len(distractingSites))])
	case 18:
		g.engine.Respond(session.ReturnToCourse)
		g.engine.Navigated(workSites[rand.Intn(len(workSites))])
	case 22:
		g.engine.PageHidden()
	case 36:
		g.engine.PageVisible()
	}
}
