// Package sim wires every service and actor of a heist into one process.
package sim

import (
	"context"
	"log"
	"math/rand"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/heist/dropoff"
	"museumheist.ai/internal/heist/master"
	"museumheist.ai/internal/heist/museum"
	"museumheist.ai/internal/heist/party"
	"museumheist.ai/internal/heist/staging"
	"museumheist.ai/internal/heist/thief"
	"museumheist.ai/internal/sim/tuning"
)

// Heist holds one run's services and actors. Build it with New, then
// call Run once.
type Heist struct {
	RunID string

	Site    *museum.Site
	Parties []*party.Coordinator
	Staging *staging.Barrier
	Dropoff *dropoff.Rendezvous

	Thieves []*thief.Thief
	Master  *master.Master

	log *log.Logger
}

type Result struct {
	RunID    string
	Total    int
	Master   master.Stats
	Handoffs []int
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Draw lays out the museum and draws every thief's agility from
// cfg.Seed. The layout comes first, so separate processes drawing from
// the same seed agree with an in-process run.
func Draw(cfg tuning.Tuning) ([]museum.Room, []int) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	rooms := museum.Layout(cfg, rng)
	agility := make([]int, cfg.Thieves())
	for i := range agility {
		agility[i] = cfg.Agility.Draw(rng)
	}
	return rooms, agility
}

// CreateThief records the creation of thief id and returns its config.
func CreateThief(cfg tuning.Tuning, id, agility int, rec audit.Recorder) thief.Config {
	c, m := cfg.Membership(id)
	rec.Note(audit.Event{Kind: audit.KindThiefCreated, Thief: id, Cohort: c, Member: m, Value: agility})
	return thief.Config{ID: id, Cohort: c, Member: m, Agility: agility, HandoffRetry: cfg.HandoffRetry()}
}

// New builds every service and actor of a run.
func New(cfg tuning.Tuning, runID string, sink audit.Sink, logger *log.Logger) *Heist {
	if runID == "" {
		runID = NewRunID()
	}
	rooms, agility := Draw(cfg)

	h := &Heist{
		RunID:   runID,
		Site:    museum.New(rooms, sink, logger),
		Staging: staging.New(cfg.PartySize, sink, logger),
		Dropoff: dropoff.New(cfg.Parties, cfg.PartySize, len(rooms), sink, logger),
		log:     logger,
	}
	for c := 0; c < cfg.Parties; c++ {
		h.Parties = append(h.Parties, party.New(c, cfg.PartySize, cfg.MaxSeparation, sink, logger))
	}

	rec := audit.NewRecorder(sink, logger)
	for id, a := range agility {
		tc := CreateThief(cfg, id, a, rec)
		h.Thieves = append(h.Thieves, thief.New(tc, h.Parties[tc.Cohort], h.Staging, h.Dropoff, h.Site, logger))
	}
	h.Master = master.New(h.Dropoff, h.Staging, logger)
	return h
}

// Run drives every actor to completion. The first failure shuts every
// service down so no actor stays parked; the services are shut down on
// success too.
func (h *Heist) Run(ctx context.Context) (Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, h.Shutdown)
	defer stop()

	for _, t := range h.Thieves {
		t := t
		g.Go(func() error { return t.Run(gctx) })
	}
	var total int
	g.Go(func() error {
		var err error
		total, err = h.Master.Run(gctx)
		return err
	})
	err := g.Wait()
	h.Shutdown()

	res := Result{RunID: h.RunID, Total: total, Master: h.Master.Stats()}
	for _, t := range h.Thieves {
		res.Handoffs = append(res.Handoffs, t.Handoffs())
	}
	if err != nil {
		return res, err
	}
	if h.log != nil {
		h.log.Printf("run %s: %d items", h.RunID, total)
	}
	return res, nil
}

func (h *Heist) Shutdown() {
	h.Site.Shutdown()
	h.Staging.Shutdown()
	h.Dropoff.Shutdown()
	for _, p := range h.Parties {
		p.Shutdown()
	}
}
