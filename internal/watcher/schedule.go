package watcher

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// StartSchedule triggers a backup on every tick of the cron schedule.
func (w *Watcher) StartSchedule(ctx context.Context) error {
	c := cron.New()
	id, err := c.AddFunc(w.schedule, func() { w.trigger("schedule") })
	if err != nil {
		return fmt.Errorf("bad schedule %q: %w", w.schedule, err)
	}

	c.Start()
	w.log.Info("schedule started", "schedule", w.schedule, "next", c.Entry(id).Next)

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
