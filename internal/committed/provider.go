package committed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/codec"
	"github.com/emilianohg/cvsbrowse/internal/cvs"
	"github.com/emilianohg/cvsbrowse/internal/models"
	"github.com/emilianohg/cvsbrowse/internal/repository"
	"github.com/emilianohg/cvsbrowse/internal/revision"
	"github.com/emilianohg/cvsbrowse/internal/zipper"
)

var (
	ErrRevisionNotFound = errors.New("revision not found")
	ErrCacheDisabled    = errors.New("changelist cache is disabled")
)

// HistoryLoader fetches rlog records. cvs.Client implements it.
type HistoryLoader interface {
	LoadHistory(ctx context.Context, q cvs.HistoryQuery, consume func(models.LogInformation) error) error
}

// ChangeListStore persists encoded changelists per location.
type ChangeListStore interface {
	Load(ctx context.Context, locationID int64) ([]repository.CachedChangeList, error)
	Replace(ctx context.Context, locationID int64, lists []repository.EncodedChangeList) error
}

// Provider reconstructs the committed changes of registered locations.
type Provider struct {
	loader      HistoryLoader
	store       ChangeListStore
	window      time.Duration
	concurrency int
	logger      logrus.FieldLogger
}

type Option func(*Provider)

func WithWindow(window time.Duration) Option {
	return func(p *Provider) {
		if window > 0 {
			p.window = window
		}
	}
}

// WithStore enables the changelist cache.
func WithStore(store ChangeListStore) Option {
	return func(p *Provider) {
		p.store = store
	}
}

// WithConcurrency limits how many locations are loaded at once.
func WithConcurrency(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewProvider(loader HistoryLoader, opts ...Option) *Provider {
	p := &Provider{
		loader:      loader,
		window:      changes.DefaultWindow,
		concurrency: 4,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) newBuilder(loc models.Location) *changes.Builder {
	return changes.NewBuilder(loc.Module,
		changes.WithWindow(p.window),
		changes.WithLogger(p.logger.WithField("location", loc.RootPath)),
	)
}

func query(loc models.Location, filter changes.Filter) cvs.HistoryQuery {
	from, to := filter.Range()
	return cvs.HistoryQuery{
		CvsRoot: loc.CvsRoot,
		Module:  loc.Module,
		From:    &from,
		To:      to,
	}
}

// CommittedChanges loads the history of loc, reconstructs its changelists and
// returns those accepted by filter, newest first. limit caps the result when
// positive. Offline locations yield nothing.
func (p *Provider) CommittedChanges(ctx context.Context, loc models.Location, filter changes.Filter, limit int) ([]*changes.ChangeList, error) {
	if loc.IsOffline() {
		return nil, nil
	}

	var logs []models.LogInformation
	err := p.loader.LoadHistory(ctx, query(loc, filter), func(info models.LogInformation) error {
		logs = append(logs, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", loc.RootPath, err)
	}

	builder := p.newBuilder(loc)
	if err := builder.AddLogs(logs); err != nil {
		return nil, fmt.Errorf("failed to build changelists of %s: %w", loc.RootPath, err)
	}

	lists := filter.Apply(builder.ChangeLists())
	sortNewestFirst(lists)
	if limit > 0 && len(lists) > limit {
		lists = lists[:limit]
	}
	return lists, nil
}

// StreamCommittedChanges hands each accepted changelist to consume the first
// time one of its revisions arrives. The list keeps growing afterwards while
// later files are read. finished is always called once with the final error.
func (p *Provider) StreamCommittedChanges(
	ctx context.Context,
	loc models.Location,
	filter changes.Filter,
	consume func(*changes.ChangeList) error,
	finished func(error),
) (err error) {
	defer func() {
		if finished != nil {
			finished(err)
		}
	}()

	if loc.IsOffline() {
		return nil
	}

	builder := p.newBuilder(loc)
	seen := changes.NewSeen()
	err = p.loader.LoadHistory(ctx, query(loc, filter), func(info models.LogInformation) error {
		events, err := builder.Normalizer().FromLog(info)
		if err != nil {
			return err
		}
		for _, cl := range builder.Fold(events) {
			if !seen.Add(cl) || !filter.Accepts(cl) {
				continue
			}
			if err := consume(cl); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to stream history of %s: %w", loc.RootPath, err)
	}
	return nil
}

// OneList returns the changelist containing revision rev of the file at path
// (module-relative). The revision is loaded alone first, then the location is
// queried around its commit date for the sibling revisions.
func (p *Provider) OneList(ctx context.Context, loc models.Location, path string, rev revision.Number) (*changes.ChangeList, error) {
	if loc.IsOffline() {
		return nil, nil
	}

	builder := p.newBuilder(loc)
	var seed *changes.ChangeList
	single := cvs.HistoryQuery{CvsRoot: loc.CvsRoot, Module: path, Revision: rev.String()}
	err := p.loader.LoadHistory(ctx, single, func(info models.LogInformation) error {
		events, err := builder.Normalizer().FromLog(info)
		if err != nil {
			return err
		}
		for _, e := range events {
			if e.Path == path && e.Revision.Equal(rev) && seed == nil {
				seed = builder.AddEvent(e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load %s revision %s: %w", path, rev, err)
	}
	if seed == nil {
		return nil, fmt.Errorf("%s revision %s: %w", path, rev, ErrRevisionNotFound)
	}

	from := seed.CommitDate.Add(-p.window)
	to := seed.CommitDate.Add(p.window)
	around := cvs.HistoryQuery{CvsRoot: loc.CvsRoot, Module: loc.Module, From: &from, To: &to}
	var logs []models.LogInformation
	err = p.loader.LoadHistory(ctx, around, func(info models.LogInformation) error {
		logs = append(logs, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load changes around %s revision %s: %w", path, rev, err)
	}

	events, err := builder.Normalizer().Normalize(logs)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		if seed.ContainsFileRevision(e.Path, e.Revision) {
			continue
		}
		builder.AddEvent(e)
	}
	return seed, nil
}

// CommittedChangesForAll loads every location concurrently. Results of the
// locations that loaded are returned, in input order, together with a
// composite error naming the ones that failed.
func (p *Provider) CommittedChangesForAll(ctx context.Context, locs []models.Location, filter changes.Filter, limit int) ([]zipper.LocationResult, error) {
	results := make([]*zipper.LocationResult, len(locs))

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, loc := range locs {
		i, loc := i, loc
		g.Go(func() error {
			lists, err := p.CommittedChanges(gctx, loc, filter, limit)
			if err != nil {
				p.logger.WithFields(logrus.Fields{
					"location": loc.RootPath,
					"error":    err,
				}).Warn("Failed to load committed changes")
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = &zipper.LocationResult{Location: loc, ChangeLists: lists}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []zipper.LocationResult
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, errs.ErrorOrNil()
}

// RefreshCache reconstructs the changelists of loc and replaces its cached
// entries. It returns the number of cached changelists.
func (p *Provider) RefreshCache(ctx context.Context, loc models.Location, filter changes.Filter) (int, error) {
	if p.store == nil {
		return 0, ErrCacheDisabled
	}

	lists, err := p.CommittedChanges(ctx, loc, filter, 0)
	if err != nil {
		return 0, err
	}

	encoded := make([]repository.EncodedChangeList, 0, len(lists))
	for _, cl := range lists {
		data, err := codec.Encode(cl)
		if err != nil {
			return 0, err
		}
		encoded = append(encoded, repository.EncodedChangeList{
			Number:        cl.Number,
			FormatVersion: codec.FormatVersion,
			CommitDate:    cl.CommitDate,
			Data:          data,
		})
	}

	if err := p.store.Replace(ctx, loc.ID, encoded); err != nil {
		return 0, fmt.Errorf("failed to cache changelists of %s: %w", loc.RootPath, err)
	}

	p.logger.WithFields(logrus.Fields{
		"location":    loc.RootPath,
		"changelists": len(encoded),
	}).Info("Refreshed changelist cache")
	return len(encoded), nil
}

// CachedChanges decodes the cached changelists of loc that pass filter, newest
// first. Entries written by another format version or unreadable entries are
// skipped.
func (p *Provider) CachedChanges(ctx context.Context, loc models.Location, filter changes.Filter) ([]*changes.ChangeList, error) {
	if p.store == nil {
		return nil, ErrCacheDisabled
	}

	rows, err := p.store.Load(ctx, loc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cache of %s: %w", loc.RootPath, err)
	}

	bind := codec.Context{RootPath: loc.Module, Window: p.window}
	var lists []*changes.ChangeList
	dropped := 0
	for _, row := range rows {
		if row.FormatVersion != codec.FormatVersion {
			dropped++
			continue
		}
		cl, err := codec.Decode(row.Data, bind)
		if err != nil {
			p.logger.WithFields(logrus.Fields{
				"location": loc.RootPath,
				"number":   row.Number,
				"error":    err,
			}).Warn("Discarding unreadable cached changelist")
			dropped++
			continue
		}
		if filter.Accepts(cl) {
			lists = append(lists, cl)
		}
	}

	if dropped > 0 {
		p.logger.WithFields(logrus.Fields{
			"location": loc.RootPath,
			"dropped":  dropped,
		}).Warn("Skipped stale cache entries")
	}
	sortNewestFirst(lists)
	return lists, nil
}

func sortNewestFirst(lists []*changes.ChangeList) {
	sort.SliceStable(lists, func(i, j int) bool {
		ni, nj := zipper.Number(lists[i]), zipper.Number(lists[j])
		if ni != nj {
			return ni > nj
		}
		return lists[i].Number > lists[j].Number
	})
}
