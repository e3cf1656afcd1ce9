package issuer

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// RegisterJobs adds the daily publish job and the republish sweep to c.
// Jobs run with ctx and stop doing work once it is cancelled.
func (i *Issuer) RegisterJobs(ctx context.Context, c *cron.Cron) error {
	if _, err := c.AddFunc(i.opts.PublishCron, func() {
		if ctx.Err() != nil {
			return
		}
		period := PeriodFor(i.now(), i.opts.PlanDaysAhead)
		log.Printf("[ISSUER] Running scheduled publish for %s", period)
		if err := i.PublishAll(ctx, period); err != nil {
			log.Printf("[ISSUER] Scheduled publish for %s incomplete: %v", period, err)
		}
	}); err != nil {
		return fmt.Errorf("publish job %q: %w", i.opts.PublishCron, err)
	}

	if _, err := c.AddFunc(i.opts.RepublishCron, func() {
		if ctx.Err() != nil {
			return
		}
		n, err := i.RepublishPending(ctx, i.now())
		if err != nil {
			log.Printf("[ISSUER] Republish sweep: %v", err)
		}
		if n > 0 {
			log.Printf("[ISSUER] Republished %d schedules", n)
		}
	}); err != nil {
		return fmt.Errorf("republish job %q: %w", i.opts.RepublishCron, err)
	}
	return nil
}
