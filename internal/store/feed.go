package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/rotisserie/eris"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"github.com/sells-group/emigration-stats/internal/model"
)

// Feed publishes the full record set of one collection to subscribers
// whenever it changes. Changes are detected on Refresh, which callers invoke
// after writes and which also runs on a poll schedule once started. Refreshes
// are serialized, so snapshots are published in the order they were listed.
type Feed struct {
	store      Store
	collection string
	interval   time.Duration

	// refreshMu is held from List until every listener has the snapshot.
	refreshMu sync.Mutex
	handlers  []func([]model.RawRecord)

	mu     sync.Mutex
	subs   map[int]chan []model.RawRecord
	nextID int
	last   uint64
	seen   bool
	latest []model.RawRecord
	sched  *cron.Cron
}

// NewFeed creates a feed over collection. A non-positive interval disables
// polling; Refresh must then be called explicitly.
func NewFeed(s Store, collection string, interval time.Duration) *Feed {
	return &Feed{
		store:      s,
		collection: collection,
		interval:   interval,
		subs:       make(map[int]chan []model.RawRecord),
	}
}

// Store returns the store the feed lists.
func (f *Feed) Store() Store { return f.store }

// Collection returns the collection the feed lists.
func (f *Feed) Collection() string { return f.collection }

// OnChange registers fn to run synchronously inside Refresh with every newly
// published snapshot. Refresh does not return until fn has. If a snapshot has
// already been published, fn receives it before OnChange returns.
func (f *Feed) OnChange(fn func([]model.RawRecord)) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	f.handlers = append(f.handlers, fn)
	f.mu.Lock()
	seen, latest := f.seen, f.latest
	f.mu.Unlock()
	if seen {
		fn(latest)
	}
}

// Subscribe registers a listener. The channel holds at most one pending
// snapshot; a newer snapshot replaces an unread one. The current snapshot,
// if any, is delivered immediately. Call the returned func to unsubscribe.
func (f *Feed) Subscribe() (<-chan []model.RawRecord, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan []model.RawRecord, 1)
	f.subs[id] = ch
	if f.seen {
		ch <- f.latest
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Refresh lists the collection and publishes it when it differs from the last
// published snapshot. It reports whether subscribers were notified.
func (f *Feed) Refresh(ctx context.Context) (bool, error) {
	f.refreshMu.Lock()
	defer f.refreshMu.Unlock()

	docs, err := f.store.List(ctx, f.collection)
	if err != nil {
		return false, eris.Wrapf(err, "feed: refresh %s", f.collection)
	}
	snap := Snapshot(docs)
	sum, err := fingerprint(snap)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	if f.seen && sum == f.last {
		f.mu.Unlock()
		return false, nil
	}
	f.last, f.seen, f.latest = sum, true, snap
	for _, ch := range f.subs {
		publish(ch, snap)
	}
	subscribers := len(f.subs)
	f.mu.Unlock()

	for _, fn := range f.handlers {
		fn(snap)
	}
	zap.L().Debug("feed: published snapshot",
		zap.String("collection", f.collection),
		zap.Int("records", len(snap)),
		zap.Int("subscribers", subscribers+len(f.handlers)),
	)
	return true, nil
}

// Start runs an initial Refresh and schedules polling. Poll errors are logged.
func (f *Feed) Start(ctx context.Context) error {
	if _, err := f.Refresh(ctx); err != nil {
		return err
	}
	if f.interval <= 0 {
		return nil
	}

	secs := int(f.interval.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %ds", secs), func() {
		if _, err := f.Refresh(ctx); err != nil {
			zap.L().Warn("feed: poll failed", zap.String("collection", f.collection), zap.Error(err))
		}
	}); err != nil {
		return eris.Wrap(err, "feed: schedule poll")
	}
	c.Start()

	f.mu.Lock()
	f.sched = c
	f.mu.Unlock()
	return nil
}

// Stop halts polling and closes every subscriber channel.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sched != nil {
		f.sched.Stop()
		f.sched = nil
	}
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// publish replaces any unread snapshot on ch with snap.
func publish(ch chan []model.RawRecord, snap []model.RawRecord) {
	select {
	case <-ch:
	default:
	}
	ch <- snap
}

func fingerprint(snap []model.RawRecord) (uint64, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return 0, eris.Wrap(err, "feed: fingerprint")
	}
	return xxh3.Hash(body), nil
}
