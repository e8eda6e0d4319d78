package changes

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/emilianohg/cvsbrowse/internal/models"
)

// Builder folds file revisions of one root into changelists. It is not safe
// for concurrent use; each root owns its own Builder.
type Builder struct {
	rootPath   string
	window     time.Duration
	normalizer *Normalizer
	logger     logrus.FieldLogger

	groups     map[GroupKey][]*ChangeList
	lists      []*ChangeList
	nextNumber int64
}

type BuilderOption func(*Builder)

// WithWindow sets the time tolerance used to join revisions into one changelist.
func WithWindow(window time.Duration) BuilderOption {
	return func(b *Builder) {
		if window > 0 {
			b.window = window
		}
	}
}

func WithLogger(logger logrus.FieldLogger) BuilderOption {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithFirstNumber sets the sequence number given to the first changelist.
func WithFirstNumber(n int64) BuilderOption {
	return func(b *Builder) {
		b.nextNumber = n
	}
}

func NewBuilder(rootPath string, opts ...BuilderOption) *Builder {
	b := &Builder{
		rootPath:   rootPath,
		window:     DefaultWindow,
		normalizer: NewNormalizer(rootPath),
		logger:     logrus.StandardLogger(),
		groups:     map[GroupKey][]*ChangeList{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Normalizer() *Normalizer {
	return b.normalizer
}

func (b *Builder) Window() time.Duration {
	return b.window
}

// AddEvent places one revision into an existing compatible changelist or a new one.
func (b *Builder) AddEvent(e Event) *ChangeList {
	cl := b.findOrCreate(e)
	cl.AddFileRevision(e.Path, e.Revision)
	return cl
}

// Fold applies AddEvent to events in order and returns the changelists touched,
// in creation order.
func (b *Builder) Fold(events []Event) []*ChangeList {
	touched := NewSeen()
	var result []*ChangeList
	for _, e := range events {
		cl := b.AddEvent(e)
		if touched.Add(cl) {
			result = append(result, cl)
		}
	}
	return result
}

// AddLogs normalizes the logs of the root and folds them.
func (b *Builder) AddLogs(logs []models.LogInformation) error {
	events, err := b.normalizer.Normalize(logs)
	if err != nil {
		return err
	}
	b.Fold(events)

	b.logger.WithFields(logrus.Fields{
		"root":        b.rootPath,
		"files":       len(logs),
		"revisions":   len(events),
		"changelists": len(b.lists),
	}).Debug("Folded revision logs")
	return nil
}

// ChangeLists returns every changelist built so far, in creation order.
func (b *Builder) ChangeLists() []*ChangeList {
	out := make([]*ChangeList, len(b.lists))
	copy(out, b.lists)
	return out
}

func (b *Builder) findOrCreate(e Event) *ChangeList {
	key := e.Key()

	// Most recently created first: sibling revisions of one commit cluster in time.
	candidates := b.groups[key]
	for i := len(candidates) - 1; i >= 0; i-- {
		cl := candidates[i]
		if cl.ContainsDate(e.Timestamp) && !cl.ContainsFile(e.Path) {
			return cl
		}
	}

	cl := NewChangeList(b.nextNumber, e.Author, e.Message, e.Branch, e.Timestamp, b.rootPath, b.window)
	b.nextNumber++
	b.groups[key] = append(b.groups[key], cl)
	b.lists = append(b.lists, cl)
	return cl
}
