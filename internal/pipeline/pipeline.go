package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"internship-sync/tracker/internal/config"
	"internship-sync/tracker/internal/dedupe"
	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/normalize"
	"internship-sync/tracker/internal/source"
	"internship-sync/tracker/internal/store"
)

// Pipeline runs one sync: fetch every search unit, normalize, dedupe,
// persist, then close listings that disappeared from their site.
type Pipeline struct {
	cfg        *config.Config
	store      *store.Store
	sources    map[string]source.Source
	normalizer *normalize.Normalizer
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    int64         `json:"run_id,omitempty"`
	DryRun   bool          `json:"dry_run"`
	Units    int           `json:"units"`
	Fetched  int64         `json:"fetched"`
	Inserted int64         `json:"inserted"`
	Reopened int64         `json:"reopened"`
	Skipped  int64         `json:"skipped"`
	Rejected int64         `json:"rejected"`
	Closed   int64         `json:"closed"`
	Errors   int64         `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// unit is one (term, location) pair of the configured cross product.
type unit struct {
	term     string
	location string
}

// counters aggregates results across workers.
type counters struct {
	fetched  atomic.Int64
	inserted atomic.Int64
	reopened atomic.Int64
	skipped  atomic.Int64
	rejected atomic.Int64
	errors   atomic.Int64

	mu      sync.Mutex
	siteOK  map[string]bool
	lastErr error
}

func (c *counters) markSite(site string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.siteOK[site] = true
	} else if _, seen := c.siteOK[site]; !seen {
		c.siteOK[site] = false
	}
}

func (c *counters) recordErr(err error) {
	c.errors.Add(1)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// New assembles a pipeline from its parts.
func New(cfg *config.Config, st *store.Store, sources map[string]source.Source, normalizer *normalize.Normalizer) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		store:      st,
		sources:    sources,
		normalizer: normalizer,
	}
}

// Run executes one full sync. Search units fail independently; only setup
// errors (key index, run bookkeeping) abort the run. In dry-run mode every
// decision is made and counted but nothing is written.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()

	index, err := p.store.KeyIndex(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to prepare run: %w", err)
	}
	resolver := dedupe.NewResolver(index)

	run := &models.Run{
		StartedAt:   start.UTC(),
		Status:      models.RunRunning,
		SearchTerms: jsonList(p.cfg.SearchTerms),
		Locations:   jsonList(p.cfg.Locations),
		Sites:       jsonList(p.cfg.SiteNames),
	}
	if snapshot, err := json.Marshal(configSnapshot(p.cfg)); err == nil {
		run.ConfigSnapshot = sql.NullString{String: string(snapshot), Valid: true}
	}
	if !p.cfg.DryRun {
		run.ID, err = p.store.StartRun(ctx, run)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to prepare run: %w", err)
		}
	}

	units := make([]unit, 0, p.cfg.SearchUnits())
	for _, term := range p.cfg.SearchTerms {
		for _, location := range p.cfg.Locations {
			units = append(units, unit{term: term, location: location})
		}
	}
	log.Info().
		Int("units", len(units)).
		Strs("sites", p.cfg.SiteNames).
		Bool("dry_run", p.cfg.DryRun).
		Msg("Starting sync run")

	cnt := &counters{siteOK: make(map[string]bool, len(p.cfg.SiteNames))}

	unitQueue := make(chan unit, len(units))
	for _, u := range units {
		unitQueue <- u
	}
	close(unitQueue)

	workers := p.cfg.WorkerCount
	if workers > len(units) {
		workers = len(units)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range unitQueue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				p.processUnit(ctx, u, resolver, run.ID, cnt)
			}
		}()
	}
	wg.Wait()

	summary := Summary{
		RunID:    run.ID,
		DryRun:   p.cfg.DryRun,
		Units:    len(units),
		Fetched:  cnt.fetched.Load(),
		Inserted: cnt.inserted.Load(),
		Reopened: cnt.reopened.Load(),
		Skipped:  cnt.skipped.Load(),
		Rejected: cnt.rejected.Load(),
		Errors:   cnt.errors.Load(),
	}

	// An interrupted run never closes anything: absence was not observed,
	// only not looked for.
	if ctx.Err() == nil {
		closed, err := p.closeStale(ctx, resolver, cnt)
		if err != nil {
			cnt.recordErr(err)
			summary.Errors = cnt.errors.Load()
		}
		summary.Closed = closed
	}
	summary.Duration = time.Since(start)

	if !p.cfg.DryRun {
		run.Status = models.RunCompleted
		if ctx.Err() != nil {
			run.Status = models.RunFailed
			run.ErrorMessage = sql.NullString{String: ctx.Err().Error(), Valid: true}
		} else if cnt.errors.Load() > 0 {
			cnt.mu.Lock()
			run.ErrorMessage = sql.NullString{String: cnt.lastErr.Error(), Valid: true}
			cnt.mu.Unlock()
		}
		run.Fetched = int(summary.Fetched)
		run.Inserted = int(summary.Inserted)
		run.Reopened = int(summary.Reopened)
		run.Skipped = int(summary.Skipped)
		run.Closed = int(summary.Closed)
		run.Errors = int(summary.Errors)
		if err := p.store.FinishRun(ctx, run); err != nil {
			log.Error().Err(err).Int64("run_id", run.ID).Msg("Failed to record run completion")
		}
	}

	log.Info().
		Int64("fetched", summary.Fetched).
		Int64("inserted", summary.Inserted).
		Int64("reopened", summary.Reopened).
		Int64("skipped", summary.Skipped).
		Int64("rejected", summary.Rejected).
		Int64("closed", summary.Closed).
		Int64("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("Sync run finished")

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// processUnit fetches one (term, location) pair from every configured site.
// Each site fetch fails on its own; one bad page never sinks the run.
func (p *Pipeline) processUnit(ctx context.Context, u unit, resolver *dedupe.Resolver, runID int64, cnt *counters) {
	sc := normalize.SearchContext{Term: u.term, Location: u.location, Country: p.cfg.Country}
	params := source.SearchParams{
		Term:             u.term,
		Location:         u.location,
		Country:          p.cfg.Country,
		Limit:            p.cfg.ResultsWanted,
		Hours:            p.cfg.HoursOld,
		JobType:          p.cfg.JobType,
		ExperienceLevels: p.cfg.ExperienceLevels,
		Remote:           p.cfg.IsRemote,
	}

	for _, site := range p.cfg.SiteNames {
		src, ok := p.sources[site]
		if !ok {
			continue
		}

		raws, err := src.Search(ctx, params)
		if err != nil {
			log.Error().
				Err(err).
				Str("site", site).
				Str("term", u.term).
				Str("location", u.location).
				Msg("Search unit failed")
			cnt.recordErr(fmt.Errorf("%s %q in %q: %w", site, u.term, u.location, err))
			cnt.markSite(site, false)
			continue
		}
		cnt.markSite(site, true)
		cnt.fetched.Add(int64(len(raws)))
		log.Debug().
			Str("site", site).
			Str("term", u.term).
			Str("location", u.location).
			Int("listings", len(raws)).
			Msg("Search unit fetched")

		for _, raw := range raws {
			p.processListing(ctx, raw, sc, resolver, runID, cnt)
		}
	}
}

func (p *Pipeline) processListing(ctx context.Context, raw source.RawListing, sc normalize.SearchContext, resolver *dedupe.Resolver, runID int64, cnt *counters) {
	listing, err := p.normalizer.Normalize(raw, sc)
	if err != nil {
		cnt.rejected.Add(1)
		log.Debug().
			Err(err).
			Str("site", raw.Site).
			Msg("Listing rejected")
		return
	}

	decision := resolver.Resolve(listing)
	switch decision.Action {
	case dedupe.Insert:
		p.insertListing(ctx, listing, resolver, runID, cnt)
	case dedupe.Reopen:
		if p.cfg.DryRun {
			cnt.reopened.Add(1)
			log.Info().
				Int64("id", decision.ID).
				Str("title", listing.Title).
				Msg("Dry run: would reopen internship")
			return
		}
		nullRunID := sql.NullInt64{Int64: runID, Valid: runID > 0}
		if err := p.store.ReopenInternship(ctx, decision.ID, nullRunID, time.Now()); err != nil {
			cnt.recordErr(err)
			return
		}
		cnt.reopened.Add(1)
	case dedupe.Skip:
		cnt.skipped.Add(1)
		// Refresh the last-sighting timestamp on rows that matched an
		// already open record.
		if decision.ID > 0 && !p.cfg.DryRun {
			if err := p.store.TouchInternship(ctx, decision.ID, time.Now()); err != nil {
				cnt.recordErr(err)
			}
		}
	}
}

func (p *Pipeline) insertListing(ctx context.Context, listing normalize.Listing, resolver *dedupe.Resolver, runID int64, cnt *counters) {
	if p.cfg.DryRun {
		cnt.inserted.Add(1)
		// Feed the resolver a placeholder id so run-internal duplicates
		// still resolve to Skip.
		resolver.Committed(listing, -1)
		log.Info().
			Str("title", listing.Title).
			Str("company", listing.Company).
			Str("site", listing.Site).
			Msg("Dry run: would insert internship")
		return
	}

	company := models.NewCompany(listing.Company)
	internship := &models.Internship{
		RunID:       sql.NullInt64{Int64: runID, Valid: runID > 0},
		Title:       listing.Title,
		Description: nullString(listing.Description),
		Location:    nullString(listing.Location),
		IsRemote:    listing.Remote,
		JobURL:      nullString(listing.URL),
		Site:        listing.Site,
		DateScraped: time.Now().UTC(),
	}
	if !listing.Posted.IsZero() {
		internship.DatePosted = sql.NullTime{Time: listing.Posted.UTC(), Valid: true}
	}

	id, inserted, err := p.store.InsertInternship(ctx, company, internship)
	if err != nil {
		cnt.recordErr(err)
		return
	}
	if !inserted {
		cnt.skipped.Add(1)
		return
	}
	resolver.Committed(listing, id)
	cnt.inserted.Add(1)
}

// closeStale runs the reconciliation pass. A site where every fetch failed
// is left out of the closing scope: its listings were never observed absent.
func (p *Pipeline) closeStale(ctx context.Context, resolver *dedupe.Resolver, cnt *counters) (int64, error) {
	cnt.mu.Lock()
	scope := make([]string, 0, len(p.cfg.SiteNames))
	for _, site := range p.cfg.SiteNames {
		if cnt.siteOK[site] {
			scope = append(scope, site)
		}
	}
	cnt.mu.Unlock()

	if len(scope) == 0 {
		log.Warn().Msg("No site fetched successfully, skipping closing pass")
		return 0, nil
	}

	seen := resolver.SeenIDs()
	if p.cfg.DryRun {
		stale, err := p.store.CountStale(ctx, scope, seen)
		if err != nil {
			return 0, err
		}
		log.Info().
			Int64("stale", stale).
			Strs("sites", scope).
			Msg("Dry run: would close stale internships")
		return stale, nil
	}

	closed, err := p.store.CloseMissing(ctx, scope, seen)
	if err != nil {
		return 0, err
	}
	if closed > 0 {
		log.Info().
			Int64("closed", closed).
			Strs("sites", scope).
			Msg("Closed stale internships")
	}
	return closed, nil
}

func jsonList(values []string) string {
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func configSnapshot(cfg *config.Config) map[string]any {
	return map[string]any{
		"search_terms":      cfg.SearchTerms,
		"locations":         cfg.Locations,
		"site_names":        cfg.SiteNames,
		"job_type":          cfg.JobType,
		"experience_levels": cfg.ExperienceLevels,
		"country":           cfg.Country,
		"results_wanted":    cfg.ResultsWanted,
		"hours_old":         cfg.HoursOld,
		"is_remote":         cfg.IsRemote,
		"worker_count":      cfg.WorkerCount,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
