// Package loop sequences one control-plane cycle: sample the fee oracle,
// reconcile channels, ingest earnings, compute fee targets, run the
// autopilot opener, rebalance, judge underperformers, and flush the
// audit log, in that fixed order.
package loop

import (
	"context"
	"time"

	"github.com/lnfeed/lnfeed/internal/autopilot"
	"github.com/lnfeed/lnfeed/internal/config"
	"github.com/lnfeed/lnfeed/internal/feecontroller"
	"github.com/lnfeed/lnfeed/internal/judge"
	"github.com/lnfeed/lnfeed/internal/lnferr"
	"github.com/lnfeed/lnfeed/internal/oracle"
	"github.com/lnfeed/lnfeed/internal/rebalancer"
	"github.com/lnfeed/lnfeed/internal/remoteclient"
	"github.com/lnfeed/lnfeed/internal/statusapi"
	"github.com/lnfeed/lnfeed/internal/store"
	"github.com/lnfeed/lnfeed/internal/tracker"
	"github.com/lnfeed/lnfeed/pkg/logging"
)

// Loop owns every component touched during a cycle and sequences them.
type Loop struct {
	cfg    *config.Config
	log    *logging.Logger
	client *remoteclient.Client
	store  *store.Store
	status *statusapi.Hub

	oracle     *oracle.Oracle
	channels   *tracker.ChannelTracker
	earnings   *tracker.EarningsTracker
	fees       *feecontroller.Controller
	autopilot  *autopilot.Autopilot
	rebalancer *rebalancer.Rebalancer
	judge      *judge.Judge
}

// WithStatusHub attaches a status feed that receives cycle/action
// broadcasts. Optional: a nil hub (the zero value) means RunOnce simply
// skips broadcasting.
func (l *Loop) WithStatusHub(hub *statusapi.Hub) *Loop {
	l.status = hub
	return l
}

func (l *Loop) broadcast(eventType statusapi.EventType, data interface{}) {
	if l.status != nil {
		l.status.Broadcast(eventType, data)
	}
}

// New wires every component from cfg, st, and client.
func New(cfg *config.Config, st *store.Store, client *remoteclient.Client, log *logging.Logger) *Loop {
	return &Loop{
		cfg:    cfg,
		log:    log,
		client: client,
		store:  st,

		oracle:   oracle.New(cfg.General.OracleURL, st),
		channels: tracker.NewChannelTracker(st),
		earnings: tracker.NewEarningsTracker(client, st),
		fees: feecontroller.New(feecontroller.Config{
			BasePPM:      cfg.Fees.BasePPM,
			BaseFeeMsat:  cfg.Fees.BaseFeeMsat,
			MinPPM:       cfg.Fees.MinPPM,
			MaxPPM:       cfg.Fees.MaxPPM,
			MinBaseMsat:  cfg.Fees.MinBaseMsat,
			MaxBaseMsat:  cfg.Fees.MaxBaseMsat,
			BalanceBins:  cfg.Fees.BalanceBins,
			MinChangePPM: cfg.Fees.MinChangePPM,
		}, st, cfg.Fees.PriceTheory.Enabled, cfg.Fees.PriceTheory.MinCyclesPerCard, cfg.Fees.PriceTheory.MaxAge, time.Now().UnixNano()),
		autopilot: autopilot.New(autopilot.Config{
			Enabled:            cfg.Autopilot.Enabled,
			ReserveSats:        cfg.Autopilot.ReserveSats,
			ReservePercent:     cfg.Autopilot.ReservePercent,
			MaxProposals:       cfg.Autopilot.MaxProposals,
			TargetChannelCount: cfg.Autopilot.TargetChannelCount,
			SeedNodes:          cfg.Autopilot.SeedNodes,
			CandidateAPIURL:    cfg.Autopilot.CandidateAPIURL,
		}, st, client),
		rebalancer: rebalancer.New(rebalancer.Config{
			Enabled:            cfg.Rebalancer.Enabled,
			PerOpAmountCapSats: cfg.Rebalancer.PerOpAmountCapSats,
			PerOpFeeCapMsat:    cfg.Rebalancer.PerOpFeeCapMsat,
			PerCycleFeeCapMsat: cfg.Rebalancer.PerCycleFeeCapMsat,
			LowThreshold:       cfg.Rebalancer.LowThreshold,
			HighThreshold:      cfg.Rebalancer.HighThreshold,
		}, st, client),
		judge: judge.New(judge.Config{
			Enabled:           cfg.Judge.Enabled,
			MinChannelAgeDays: cfg.Judge.MinChannelAgeDays,
			ReopenCostSats:    cfg.Judge.ReopenCostSats,
		}, st),
	}
}

// RunOnce executes exactly one cycle and returns. It never blocks beyond
// the cycle-wide deadline: default half the configured cycle interval.
func (l *Loop) RunOnce(ctx context.Context) error {
	deadline := l.cfg.General.CycleInterval() / 2
	cycleCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if !l.cfg.General.Enabled {
		l.log.Info("cycle skipped: master switch disabled")
		return nil
	}

	dryRun := l.cfg.General.DryRun
	log := l.log.Component("loop")

	// (A) Sample oracle.
	if err := l.oracle.Sample(cycleCtx); err != nil {
		log.Warn("oracle sample failed", "error", err)
	}
	regime := l.oracle.CurrentRegime()
	log.Info("cycle starting", "regime", regime, "dry_run", dryRun)
	l.broadcast(statusapi.EventCycleStarted, map[string]any{"regime": regime, "dry_run": dryRun})

	liveChannels, err := l.client.ListChannels(cycleCtx)
	if err != nil {
		return lnferr.Transport("listing channels for cycle", err)
	}

	// (B) Reconcile channels.
	if err := l.channels.Reconcile(liveChannels); err != nil {
		return err
	}

	// (C) Ingest earnings.
	if l.cfg.Fees.Enabled || l.cfg.Rebalancer.Enabled || l.cfg.Fees.PriceTheory.Enabled {
		newCount, err := l.earnings.Ingest(cycleCtx)
		if err != nil {
			log.Warn("earnings ingestion failed", "error", err)
		} else {
			log.Info("earnings ingested", "new_events", newCount)
		}
	}

	// (D) Compute fee targets and emit fee updates.
	if l.cfg.Fees.Enabled {
		for _, c := range liveChannels {
			if cycleCtx.Err() != nil {
				break
			}
			update, ok, err := l.fees.Plan(c)
			if err != nil {
				log.Warn("fee plan failed", "channel", c.ChannelID, "error", err)
				continue
			}
			if !ok {
				continue
			}
			l.emitFeeUpdate(cycleCtx, update, dryRun, log)
		}
	}

	// (E) Autopilot.
	if l.cfg.Autopilot.Enabled {
		proposals, err := l.autopilot.Plan(cycleCtx, regime)
		if err != nil {
			log.Warn("autopilot plan failed", "error", err)
		}
		for _, p := range proposals {
			if cycleCtx.Err() != nil {
				break
			}
			l.emitOpenChannel(cycleCtx, p, dryRun, log)
		}
	}

	// (F) Rebalance.
	if l.cfg.Rebalancer.Enabled {
		pairs, err := l.rebalancer.Plan(liveChannels)
		if err != nil {
			log.Warn("rebalancer plan failed", "error", err)
		} else {
			l.emitRebalances(cycleCtx, pairs, dryRun, log)
		}
	}

	// (G) Judge.
	if l.cfg.Judge.Enabled {
		candidate, err := l.judge.Recommend(liveChannels, time.Now())
		if err != nil {
			log.Warn("judge recommend failed", "error", err)
		} else if candidate != nil {
			l.emitCloseChannel(cycleCtx, candidate, dryRun, log)
		}
	}

	// (H) Flush audit: individual action records are written inline as
	// each decision is made (spec.md §5's "audit records are written
	// after the action's remote call returns"); nothing remains buffered.
	log.Info("cycle complete")
	l.broadcast(statusapi.EventCycleCompleted, map[string]any{"regime": regime})
	return nil
}

func (l *Loop) emitFeeUpdate(ctx context.Context, u feecontroller.Update, dryRun bool, log *logging.Logger) {
	params := map[string]any{
		"channel_id":       u.ChannelID,
		"peer_id":          u.PeerID,
		"target_base_msat": u.TargetBaseMsat,
		"target_ppm":       u.TargetPPM,
		"balance_mod":      u.BalanceMod,
		"price_mod":        u.PriceMod,
	}

	success, outcome := true, "ok"
	if !dryRun {
		if err := l.client.UpdateChannelConfig(ctx, u.ChannelID, u.TargetBaseMsat, u.TargetPPM); err != nil {
			success, outcome = false, err.Error()
		}
	} else {
		outcome = "dry-run"
	}

	log.Info("fee update", "channel", u.ChannelID, "target_ppm", u.TargetPPM, "success", success, "dry_run", dryRun)
	if err := l.store.RecordAction(store.ActionAudit{
		Kind: store.ActionFeeUpdate, OccurredAt: time.Now(), Parameters: params,
		DryRun: dryRun, Success: success, Outcome: outcome,
	}); err != nil {
		log.Error("recording fee update action", "error", err)
	}
	l.broadcast(statusapi.EventAction, map[string]any{"kind": store.ActionFeeUpdate, "parameters": params, "success": success})
}

func (l *Loop) emitOpenChannel(ctx context.Context, p autopilot.Proposal, dryRun bool, log *logging.Logger) {
	params := map[string]any{"peer_id": p.PeerID, "amount_sats": p.AmountSats}

	success, outcome := true, "ok"
	if !dryRun {
		if _, err := l.client.OpenChannel(ctx, p.PeerID, p.AmountSats, true); err != nil {
			success, outcome = false, err.Error()
			l.autopilot.RecordFailedOpen(p.PeerID)
		}
	} else {
		outcome = "dry-run"
	}

	log.Info("open channel", "peer", p.PeerID, "amount_sats", p.AmountSats, "success", success, "dry_run", dryRun)
	if err := l.store.RecordAction(store.ActionAudit{
		Kind: store.ActionOpenChannel, OccurredAt: time.Now(), Parameters: params,
		DryRun: dryRun, Success: success, Outcome: outcome,
	}); err != nil {
		log.Error("recording open channel action", "error", err)
	}
	l.broadcast(statusapi.EventAction, map[string]any{"kind": store.ActionOpenChannel, "parameters": params, "success": success})
}

func (l *Loop) emitRebalances(ctx context.Context, pairs []rebalancer.Pair, dryRun bool, log *logging.Logger) {
	if dryRun {
		for _, p := range pairs {
			params := map[string]any{
				"source":      p.Source.ChannelID,
				"destination": p.Destination.ChannelID,
				"amount_sats": p.AmountSats,
				"fee_budget":  p.FeeBudget,
			}
			log.Info("rebalance", "source", p.Source.ChannelID, "destination", p.Destination.ChannelID, "dry_run", true)
			if err := l.store.RecordAction(store.ActionAudit{
				Kind: store.ActionRebalance, OccurredAt: time.Now(), Parameters: params,
				DryRun: true, Success: true, Outcome: "dry-run",
			}); err != nil {
				log.Error("recording rebalance action", "error", err)
			}
			l.broadcast(statusapi.EventAction, map[string]any{"kind": store.ActionRebalance, "parameters": params, "success": true})
		}
		return
	}

	for _, result := range l.rebalancer.Execute(ctx, pairs) {
		p := result.Pair
		params := map[string]any{
			"source":      p.Source.ChannelID,
			"destination": p.Destination.ChannelID,
			"amount_sats": p.AmountSats,
			"fee_budget":  p.FeeBudget,
		}
		log.Info("rebalance", "source", p.Source.ChannelID, "destination", p.Destination.ChannelID, "success", result.Success)
		if err := l.store.RecordAction(store.ActionAudit{
			Kind: store.ActionRebalance, OccurredAt: time.Now(), Parameters: params,
			DryRun: false, Success: result.Success, Outcome: result.Outcome,
		}); err != nil {
			log.Error("recording rebalance action", "error", err)
		}
		l.broadcast(statusapi.EventAction, map[string]any{"kind": store.ActionRebalance, "parameters": params, "success": result.Success})
	}
}

func (l *Loop) emitCloseChannel(ctx context.Context, c *judge.Candidate, dryRun bool, log *logging.Logger) {
	params := map[string]any{
		"channel_id":  c.ChannelID,
		"peer_id":     c.PeerID,
		"improvement": c.Improvement,
	}

	success, outcome := true, "ok"
	if !dryRun {
		if err := l.client.CloseChannel(ctx, c.ChannelID, false); err != nil {
			success, outcome = false, err.Error()
		}
	} else {
		outcome = "dry-run"
	}

	log.Info("close channel", "channel", c.ChannelID, "improvement", c.Improvement, "success", success, "dry_run", dryRun)
	if err := l.store.RecordAction(store.ActionAudit{
		Kind: store.ActionCloseChannel, OccurredAt: time.Now(), Parameters: params,
		DryRun: dryRun, Success: success, Outcome: outcome,
	}); err != nil {
		log.Error("recording close channel action", "error", err)
	}
	l.broadcast(statusapi.EventAction, map[string]any{"kind": store.ActionCloseChannel, "parameters": params, "success": success})
}
