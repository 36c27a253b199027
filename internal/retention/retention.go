// Package retention implements generational rotation of the backup set:
// a number of recent daily archives, then one per ISO week, then one per
// calendar month.
package retention

import (
	"context"
	"errors"
	"fmt"

	"github.com/raoulx24/dir-archiver/internal/config"
	"github.com/raoulx24/dir-archiver/internal/digest"
	"github.com/raoulx24/dir-archiver/internal/fs"
	"github.com/raoulx24/dir-archiver/internal/logging"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// Tier is the generation an archive is kept for.
type Tier string

const (
	Daily   Tier = "daily"
	Weekly  Tier = "weekly"
	Monthly Tier = "monthly"
)

// Kept is an archive that survives rotation.
type Kept struct {
	Entry snapshot.Entry
	Tier  Tier
}

// Plan is the outcome of classifying a backup set. Entries without a digest
// record appear in neither list.
type Plan struct {
	Kept    []Kept
	Deleted []snapshot.Entry
}

// Engine applies rotation plans to the destination.
type Engine struct {
	fs  fs.FS
	log logging.Logger
}

func New(filesystem fs.FS, log logging.Logger) *Engine {
	if filesystem == nil {
		filesystem = fs.New()
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{fs: filesystem, log: log}
}

// Classify sorts entries newest first and assigns them to tiers. It does
// not touch the filesystem.
func Classify(entries []snapshot.Entry, policy config.RetentionPolicy) Plan {
	var set []snapshot.Entry
	for _, e := range entries {
		if e.Stamped() {
			set = append(set, e)
		}
	}
	snapshot.SortNewestFirst(set)

	var plan Plan
	kept := make([]bool, len(set))
	weeks := map[[2]int]bool{}
	months := map[[2]int]bool{}

	keep := func(i int, tier Tier) {
		kept[i] = true
		plan.Kept = append(plan.Kept, Kept{Entry: set[i], Tier: tier})
		weeks[weekOf(set[i])] = true
		months[monthOf(set[i])] = true
	}

	for i := 0; i < len(set) && i < policy.DailyKeep; i++ {
		keep(i, Daily)
	}

	n := 0
	for i := range set {
		if n >= policy.WeeklyKeep {
			break
		}
		if kept[i] || weeks[weekOf(set[i])] {
			continue
		}
		keep(i, Weekly)
		n++
	}

	n = 0
	for i := range set {
		if n >= policy.MonthlyKeep {
			break
		}
		if kept[i] || months[monthOf(set[i])] {
			continue
		}
		keep(i, Monthly)
		n++
	}

	for i, e := range set {
		if !kept[i] {
			plan.Deleted = append(plan.Deleted, e)
		}
	}
	return plan
}

func weekOf(e snapshot.Entry) [2]int {
	y, w := e.Timestamp.ISOWeek()
	return [2]int{y, w}
}

func monthOf(e snapshot.Entry) [2]int {
	return [2]int{e.Timestamp.Year(), int(e.Timestamp.Month())}
}

// Plan classifies entries under policy and logs the resulting keep set.
func (e *Engine) Plan(entries []snapshot.Entry, policy config.RetentionPolicy) Plan {
	plan := Classify(entries, policy)
	for _, k := range plan.Kept {
		e.log.Debug("rotation: keeping", "archive", k.Entry.Name, "tier", string(k.Tier))
	}
	return plan
}

// Apply deletes every archive the plan marks for deletion together with its
// digest record. Each deletion is logged before it happens. In dry-run mode
// only the log lines are written. Deletion continues past failures; all of
// them are returned joined.
func (e *Engine) Apply(ctx context.Context, plan Plan, dryRun bool) error {
	var errs []error
	for _, entry := range plan.Deleted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if dryRun {
			e.log.Info("dry run: would delete archive", "archive", entry.Path)
			continue
		}

		e.log.Info("rotation: deleting archive", "archive", entry.Path)
		if err := e.remove(entry); err != nil {
			e.log.Error("rotation: delete failed", "archive", entry.Path, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// remove deletes the digest record before the archive. A failure part way
// leaves an unstamped archive, which rotation ignores, never a sidecar
// without its archive.
func (e *Engine) remove(entry snapshot.Entry) error {
	if err := e.fs.Remove(digest.SidecarPath(entry.Path)); err != nil {
		return fmt.Errorf("deleting digest of %s: %w", entry.Name, err)
	}
	if err := e.fs.Remove(entry.Path); err != nil {
		return fmt.Errorf("deleting %s: %w", entry.Name, err)
	}
	return nil
}

// Rotate scans dir, plans under policy and applies the plan.
func (e *Engine) Rotate(ctx context.Context, dir string, namer snapshot.Namer, policy config.RetentionPolicy, dryRun bool) (Plan, error) {
	entries, err := snapshot.Scan(dir, namer)
	if err != nil {
		return Plan{}, err
	}
	plan := e.Plan(entries, policy)
	e.log.Info("rotation planned", "kept", len(plan.Kept), "deleted", len(plan.Deleted), "dry_run", dryRun)
	return plan, e.Apply(ctx, plan, dryRun)
}
