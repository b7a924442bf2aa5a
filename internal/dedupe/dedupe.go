package dedupe

import (
	"sync"

	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/normalize"
)

// Action is the resolver's verdict for one normalized listing.
type Action int

const (
	// Insert means the listing is new: create the company link and row.
	Insert Action = iota
	// Reopen means the listing matches a closed row that has reappeared.
	Reopen
	// Skip means the listing is already stored (or already written earlier
	// in this run) and needs no write.
	Skip
)

func (a Action) String() string {
	switch a {
	case Insert:
		return "insert"
	case Reopen:
		return "reopen"
	default:
		return "skip"
	}
}

// Decision pairs the action with the existing row it applies to, if any.
type Decision struct {
	Action Action
	ID     int64
}

// Key identifies one stored internship in the resolver's index.
type Key struct {
	ID     int64
	Status string
}

// Index is the snapshot of stored identity keys a run resolves against.
// When several historical rows share a fingerprint, the loader keeps the
// most recently scraped one.
type Index struct {
	ByURL         map[string]Key
	ByFingerprint map[string]Key
}

// NewIndex returns an empty index.
func NewIndex() Index {
	return Index{
		ByURL:         make(map[string]Key),
		ByFingerprint: make(map[string]Key),
	}
}

// Resolver decides insert/reopen/skip for each listing of a run. It is safe
// for concurrent use: the intra-run seen set is consulted and updated under
// one lock, so two search units carrying the same listing cannot both decide
// Insert: the first wins and the second degrades to Skip.
type Resolver struct {
	mu      sync.Mutex
	index   Index
	seenKey map[string]struct{}
	seenIDs map[int64]struct{}
}

// NewResolver builds a resolver over the stored key index.
func NewResolver(index Index) *Resolver {
	if index.ByURL == nil {
		index.ByURL = make(map[string]Key)
	}
	if index.ByFingerprint == nil {
		index.ByFingerprint = make(map[string]Key)
	}
	return &Resolver{
		index:   index,
		seenKey: make(map[string]struct{}),
		seenIDs: make(map[int64]struct{}),
	}
}

// Resolve matches the listing against the store index and the run's own
// history. Matched rows are marked seen for the closing pass regardless of
// the returned action.
func (r *Resolver) Resolve(listing normalize.Listing) Decision {
	companyKey := models.NormalizeCompanyName(listing.Company)
	fp := models.Fingerprint(listing.Title, companyKey, listing.Location)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Intra-run duplicates: same listing under two search terms.
	if listing.URL != "" {
		if _, ok := r.seenKey[listing.URL]; ok {
			return Decision{Action: Skip}
		}
	}
	if _, ok := r.seenKey[fp]; ok {
		return Decision{Action: Skip}
	}

	key, matched := Key{}, false
	if listing.URL != "" {
		key, matched = r.index.ByURL[listing.URL]
	}
	if !matched {
		key, matched = r.index.ByFingerprint[fp]
	}

	r.markSeenLocked(listing.URL, fp)

	if !matched {
		return Decision{Action: Insert}
	}

	r.seenIDs[key.ID] = struct{}{}
	if key.Status == models.StatusClosed {
		return Decision{Action: Reopen, ID: key.ID}
	}
	return Decision{Action: Skip, ID: key.ID}
}

// Committed records a freshly inserted row so later resolutions in the same
// run find it in the index.
func (r *Resolver) Committed(listing normalize.Listing, id int64) {
	companyKey := models.NormalizeCompanyName(listing.Company)
	fp := models.Fingerprint(listing.Title, companyKey, listing.Location)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := Key{ID: id, Status: models.StatusOpen}
	if listing.URL != "" {
		r.index.ByURL[listing.URL] = key
	}
	r.index.ByFingerprint[fp] = key
	r.seenIDs[id] = struct{}{}
}

// SeenIDs returns the set of pre-existing row ids observed during the run.
// Open rows in the run's scope that are absent from this set are stale and
// get closed by the reconciliation pass.
func (r *Resolver) SeenIDs() map[int64]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int64]struct{}, len(r.seenIDs))
	for id := range r.seenIDs {
		out[id] = struct{}{}
	}
	return out
}

func (r *Resolver) markSeenLocked(url, fp string) {
	if url != "" {
		r.seenKey[url] = struct{}{}
	}
	r.seenKey[fp] = struct{}{}
}
