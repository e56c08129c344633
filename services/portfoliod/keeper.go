package portfoliod

import (
	"context"
	"fmt"
	"log/slog"

	"creditvault/observability/metrics"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Keeper settles continuous fees and records NAV snapshots on a schedule.
type Keeper struct {
	rt   *Runtime
	cron *cron.Cron
	ctx  context.Context
}

func NewKeeper(ctx context.Context, rt *Runtime) *Keeper {
	return &Keeper{
		rt:   rt,
		cron: cron.New(),
		ctx:  ctx,
	}
}

// Register schedules RunOnce. The schedule uses the standard five-field syntax or
// a descriptor such as "@every 1h".
func (k *Keeper) Register(schedule string) error {
	if _, err := k.cron.AddFunc(schedule, func() { k.RunOnce() }); err != nil {
		return fmt.Errorf("keeper: register %q: %w", schedule, err)
	}
	return nil
}

func (k *Keeper) Start() {
	k.cron.Start()
	k.rt.logger.Info("keeper started")
}

// Stop waits for a running pass to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
	k.rt.logger.Info("keeper stopped")
}

// RunOnce settles every vault in turn. A failing vault does not stop the pass;
// the number of failures is returned.
func (k *Keeper) RunOnce() int {
	ctx, span := k.rt.tracer.Start(k.ctx, "portfoliod.keeper_run")
	defer span.End()

	failures := 0
	vaults := k.rt.Vaults()
	for _, name := range vaults {
		err := k.rt.SettleFees(ctx, name)
		if err == nil {
			err = k.rt.RecordNAV(ctx, name)
		}
		metrics.Portfolio().ObserveKeeperRun(name, err)
		if err != nil {
			failures++
			k.rt.logger.Warn("keeper pass failed", slog.String("vault", name), slog.Any("error", err))
			continue
		}
		k.rt.logger.Debug("keeper pass", slog.String("vault", name))
	}
	span.SetAttributes(
		attribute.Int("keeper.vaults", len(vaults)),
		attribute.Int("keeper.failures", failures))
	if failures > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d vault passes failed", failures))
	}
	return failures
}
