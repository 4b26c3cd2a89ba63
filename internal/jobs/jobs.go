// Package jobs runs the periodic reconciliation loops: subscription expiry
// sweeps with advance notices, next-day session reminders and an optional
// keepalive ping for free-tier hosting. Each loop owns its cadence and
// survives store failures by reconnecting with capped backoff.
package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

// Sender delivers a notification to one chat. The bot satisfies it.
type Sender interface {
	Notify(chatID int64, text string) error
}

// Jobs holds the shared dependencies of all loops.
type Jobs struct {
	store  *storage.Store
	sender Sender
	log    zerolog.Logger
}

func New(store *storage.Store, sender Sender, log zerolog.Logger) *Jobs {
	return &Jobs{store: store, sender: sender, log: log}
}

const (
	expirySweepEvery  = 24 * time.Hour
	reminderEvery     = 24 * time.Hour
	expiryNoticeAhead = 3 * 24 * time.Hour
	maxBackoff        = time.Hour
)

// RunExpirySweep flips overdue subscriptions to expired and warns users
// whose subscription ends within the notice window. Runs once immediately,
// then daily.
func (j *Jobs) RunExpirySweep(ctx context.Context) {
	j.runLoop(ctx, "expiry sweep", expirySweepEvery, j.sweepExpiry)
}

// RunSessionReminders reminds everyone booked for tomorrow. Runs once
// immediately, then daily.
func (j *Jobs) RunSessionReminders(ctx context.Context) {
	j.runLoop(ctx, "session reminders", reminderEvery, j.remindSessions)
}

// runLoop executes one cycle on a fixed cadence. A failing cycle retries
// with doubling delays capped at an hour before falling back to the normal
// cadence.
func (j *Jobs) runLoop(ctx context.Context, name string, every time.Duration, fn func(context.Context) error) {
	delay := time.Duration(0)
	backoff := time.Minute
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := j.cycle(ctx, name, fn); err != nil {
			delay = backoff
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		delay = every
		backoff = time.Minute
	}
}

// cycle verifies the store is usable before touching it, reconnecting when
// the integrity check fails (the file may have been swapped or corrupted
// between cycles), then runs one pass of the job.
func (j *Jobs) cycle(ctx context.Context, name string, fn func(context.Context) error) error {
	j.recoverStore(ctx, name)
	if err := fn(ctx); err != nil {
		j.log.Error().Err(err).Str("job", name).Msg("job run failed")
		return err
	}
	return nil
}

// recoverStore reopens the database when it no longer passes an integrity
// check, which covers the file having been swapped or corrupted under us.
func (j *Jobs) recoverStore(ctx context.Context, name string) {
	if err := j.store.CheckIntegrity(ctx); err == nil {
		return
	}
	j.log.Warn().Str("job", name).Msg("store integrity check failed, reconnecting")
	if err := j.store.Reconnect(ctx); err != nil {
		j.log.Error().Err(err).Str("job", name).Msg("store reconnect failed")
	}
}

func (j *Jobs) sweepExpiry(ctx context.Context) error {
	expired, err := j.store.ExpireDueSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("expire due: %w", err)
	}
	if expired > 0 {
		j.log.Info().Int64("count", expired).Msg("subscriptions expired")
	}

	notices, err := j.store.ExpiringWithin(ctx, expiryNoticeAhead)
	if err != nil {
		return fmt.Errorf("expiring within: %w", err)
	}
	for _, n := range notices {
		expires := ""
		if n.ExpiresAt != nil {
			expires = n.ExpiresAt.Format("02.01.2006")
		}
		text := fmt.Sprintf("%s, ваш абонемент «%s» действует до %s. Осталось занятий: %d. Успейте их использовать! 🤸",
			n.FirstName, n.PlanName, expires, n.SessionsLeft())
		// One failed delivery must not abort the batch.
		if err := j.sender.Notify(n.UserID, text); err != nil {
			j.log.Warn().Err(err).Int64("user_id", n.UserID).Msg("expiry notice failed")
		}
	}
	return nil
}

func (j *Jobs) remindSessions(ctx context.Context) error {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	books, err := j.store.BookingsOnDate(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("bookings on %s: %w", tomorrow, err)
	}
	for _, bk := range books {
		text := fmt.Sprintf("%s, напоминаем: завтра в %s у вас занятие на площадке %s. До встречи! 🤸",
			bk.FirstName, bk.Time, bk.Location)
		if err := j.sender.Notify(bk.UserID, text); err != nil {
			j.log.Warn().Err(err).Int64("user_id", bk.UserID).Msg("session reminder failed")
		}
	}
	return nil
}

const (
	keepaliveEvery = 5 * time.Minute
	keepaliveRetry = time.Minute
)

// RunKeepalive pings url on a fixed interval so free-tier hosts do not put
// the service to sleep. A failed ping retries sooner.
func (j *Jobs) RunKeepalive(ctx context.Context, url string) {
	client := &http.Client{Timeout: 30 * time.Second}
	delay := keepaliveEvery
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			j.log.Error().Err(err).Msg("keepalive request build failed")
			return
		}
		resp, err := client.Do(req)
		if err != nil {
			j.log.Warn().Err(err).Msg("keepalive ping failed")
			delay = keepaliveRetry
			continue
		}
		resp.Body.Close()
		delay = keepaliveEvery
	}
}
