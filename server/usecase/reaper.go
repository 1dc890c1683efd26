package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hazavi/yumekai-sub000/server/domain"
	"github.com/hazavi/yumekai-sub000/server/store"
)

// StatsProvider is implemented by stores that can report their size.
type StatsProvider interface {
	Stats() store.Stats
}

// Reaper periodically deletes rooms that have been empty for longer than
// the inactive timeout. Only one reaper should run per store.
type Reaper struct {
	store    store.Store
	clock    Clock
	interval time.Duration
	timeout  time.Duration
	onReaped func(roomID string)
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewReaper(s store.Store, clock Clock, interval, timeout time.Duration) *Reaper {
	if interval <= 0 {
		interval = domain.SweepInterval
	}
	if timeout <= 0 {
		timeout = domain.InactiveTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reaper{
		store:    s,
		clock:    clock,
		interval: interval,
		timeout:  timeout,
		log:      logrus.WithField("component", "reaper"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetOnReaped registers a callback invoked with the id of every deleted room.
func (r *Reaper) SetOnReaped(callback func(roomID string)) {
	r.onReaped = callback
}

// Start launches the sweep loop and returns. The loop sweeps once
// immediately and then every interval until ctx is done or Stop is called.
func (r *Reaper) Start(ctx context.Context) {
	if ctx == nil {
		ctx = r.ctx
	}
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{"interval": r.interval, "timeout": r.timeout}).Info("reaper started")
	r.sweepAndLog()

	for {
		select {
		case <-ticker.C:
			r.sweepAndLog()
		case <-ctx.Done():
			r.log.Info("reaper stopping due to context cancellation")
			return
		case <-r.ctx.Done():
			r.log.Info("reaper stopping due to internal cancellation")
			return
		}
	}
}

func (r *Reaper) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Reaper) sweepAndLog() {
	reaped, err := r.Sweep(r.clock.now())
	entry := r.log.WithField("reaped", len(reaped))
	if sp, ok := r.store.(StatsProvider); ok {
		stats := sp.Stats()
		entry = entry.WithFields(logrus.Fields{
			"rooms":         stats.Records,
			"connections":   stats.Connections,
			"subscriptions": stats.Subscriptions,
			"hooks":         stats.Hooks,
		})
	}
	if err != nil {
		entry.WithError(err).Error("sweep failed")
		return
	}
	entry.Debug("sweep finished")
}

// Sweep deletes every room abandoned at now and returns their ids. Each
// delete re-checks the room inside a transaction, so a join racing the sweep
// keeps the room alive.
func (r *Reaper) Sweep(now time.Time) ([]string, error) {
	snap, err := r.store.Get(roomsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	var reaped []string
	var errs []error
	for _, room := range decodeRooms(snap, r.log) {
		if !room.IsAbandoned(now, r.timeout) {
			continue
		}
		deleted := false
		_, err := r.store.Transaction(roomPath(room.ID), func(current any) (any, error) {
			latest, err := decodeRoom(room.ID, current)
			if err != nil {
				return nil, err
			}
			if !latest.IsAbandoned(now, r.timeout) {
				return nil, store.SkipWrite
			}
			deleted = true
			return nil, nil
		})
		if err != nil {
			if !errors.Is(err, domain.ErrRoomNotFound) {
				errs = append(errs, fmt.Errorf("room %s: %w", room.ID, err))
			}
			continue
		}
		if !deleted {
			continue
		}
		reaped = append(reaped, room.ID)
		r.log.WithFields(logrus.Fields{
			"room_id":     room.ID,
			"idle_for_ms": now.UnixMilli() - room.LastActive(),
		}).Info("room reaped")
		if r.onReaped != nil {
			r.onReaped(room.ID)
		}
	}
	return reaped, errors.Join(errs...)
}
