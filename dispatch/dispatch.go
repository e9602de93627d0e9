package dispatch

import (
	"context"
	"log"
	"sync"
	"time"

	"craiseek/config"
	"craiseek/models"
	"craiseek/notify"
	"craiseek/services"
	"craiseek/storage"
)

// Dispatcher fans matched listings out to subscriber channels. A cycle
// calls Run once with the listings that cleared the dedup gate; everything
// downstream of matching is per-job isolated, so one sick provider never
// starves the other channels.
type Dispatcher struct {
	store      storage.Store
	senders    map[models.Channel]notify.Sender
	workers    int
	retryDelay time.Duration
}

func New(store storage.Store, senders []notify.Sender, cfg config.DispatchConfig) *Dispatcher {
	byChannel := make(map[models.Channel]notify.Sender, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		store:      store,
		senders:    byChannel,
		workers:    workers,
		retryDelay: cfg.RetryDelay,
	}
}

// Stats summarizes one dispatch pass.
type Stats struct {
	Matched     int // (listing, subscriber) pairs that matched criteria
	Planned     int // jobs handed to the pool
	Delivered   int
	Failed      int // transient exhaustion, permanent rejections, claim errors
	Unavailable int // entitled channels with no sender or no address
	Consumed    int // triples already recorded in an earlier cycle
}

type job struct {
	listing models.Listing
	sub     models.Subscriber
	channel models.Channel
	address string
	message string
}

// Run matches listings against subscribers and delivers over every
// entitled, usable channel that hasn't consumed the triple yet.
func (d *Dispatcher) Run(ctx context.Context, listings []models.Listing) (Stats, error) {
	var stats Stats
	if len(listings) == 0 {
		return stats, nil
	}

	subs, err := d.store.Subscribers(ctx)
	if err != nil {
		return stats, err
	}
	if len(subs) == 0 {
		return stats, nil
	}

	jobs, err := d.plan(ctx, listings, subs, &stats)
	if err != nil {
		return stats, err
	}
	if len(jobs) == 0 {
		return stats, nil
	}

	d.execute(ctx, jobs, &stats)
	return stats, nil
}

func (d *Dispatcher) plan(ctx context.Context, listings []models.Listing, subs []models.Subscriber, stats *Stats) ([]job, error) {
	var jobs []job
	for i := range listings {
		l := &listings[i]
		message := notify.FormatMessage(l)

		for j := range subs {
			sub := &subs[j]
			if !services.Matches(l, &sub.Criteria) {
				continue
			}
			stats.Matched++

			for _, ch := range sub.EntitledChannels() {
				address := sub.Address(ch)
				if _, ok := d.senders[ch]; !ok || address == "" {
					// Not persisted: a later cycle with the channel
					// configured may still deliver this triple.
					stats.Unavailable++
					log.Printf("Dispatch: subscriber %d channel %s unavailable for listing %s",
						sub.ID, ch, l.ID)
					continue
				}

				exists, err := d.store.AttemptExists(ctx, l.ID, sub.ID, ch)
				if err != nil {
					return nil, err
				}
				if exists {
					stats.Consumed++
					continue
				}

				jobs = append(jobs, job{
					listing: *l,
					sub:     *sub,
					channel: ch,
					address: address,
					message: message,
				})
			}
		}
	}
	stats.Planned = len(jobs)
	return jobs, nil
}

func (d *Dispatcher) execute(ctx context.Context, jobs []job, stats *Stats) {
	queue := make(chan job)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range queue {
				// Claim the triple before sending. The insert-or-ignore is
				// the race arbiter: a concurrent pass that loses the claim
				// skips the send instead of duplicating it.
				claimed, err := d.store.RecordAttempt(ctx, &models.DeliveryAttempt{
					ListingID:    jb.listing.ID,
					SubscriberID: jb.sub.ID,
					Channel:      jb.channel,
					Outcome:      models.OutcomePending,
					AttemptedAt:  time.Now(),
				})
				if err != nil {
					log.Printf("Dispatch: claim attempt for listing %s subscriber %d: %v",
						jb.listing.ID, jb.sub.ID, err)
					mu.Lock()
					stats.Failed++
					mu.Unlock()
					continue
				}
				if !claimed {
					mu.Lock()
					stats.Consumed++
					mu.Unlock()
					continue
				}

				outcome, detail := d.deliver(ctx, jb)
				if err := d.store.UpdateAttempt(ctx, &models.DeliveryAttempt{
					ListingID:    jb.listing.ID,
					SubscriberID: jb.sub.ID,
					Channel:      jb.channel,
					Outcome:      outcome,
					Detail:       detail,
					AttemptedAt:  time.Now(),
				}); err != nil {
					log.Printf("Dispatch: settle attempt for listing %s subscriber %d: %v",
						jb.listing.ID, jb.sub.ID, err)
				}

				mu.Lock()
				if outcome == models.OutcomeDelivered {
					stats.Delivered++
				} else {
					stats.Failed++
				}
				mu.Unlock()
			}
		}()
	}

	for _, jb := range jobs {
		queue <- jb
	}
	close(queue)
	wg.Wait()
}

// deliver makes the send, retrying exactly once when the failure looks
// transient. The retry budget is per job; cross-cycle redelivery is ruled
// out by the attempt record regardless of outcome.
func (d *Dispatcher) deliver(ctx context.Context, jb job) (models.Outcome, string) {
	sender := d.senders[jb.channel]

	err := sender.Send(ctx, jb.address, jb.message)
	if err == nil {
		return models.OutcomeDelivered, ""
	}

	de, ok := notify.AsDeliveryError(err)
	if !ok || !de.Transient() {
		log.Printf("Dispatch: %s to subscriber %d rejected: %v", jb.channel, jb.sub.ID, err)
		return models.OutcomePermanentFailure, err.Error()
	}

	log.Printf("Dispatch: %s to subscriber %d failed transiently, retrying: %v",
		jb.channel, jb.sub.ID, err)
	select {
	case <-time.After(d.retryDelay):
	case <-ctx.Done():
		return models.OutcomeTransientFailure, err.Error()
	}

	if retryErr := sender.Send(ctx, jb.address, jb.message); retryErr == nil {
		return models.OutcomeDelivered, ""
	} else if rde, ok := notify.AsDeliveryError(retryErr); ok && !rde.Transient() {
		return models.OutcomePermanentFailure, retryErr.Error()
	} else {
		return models.OutcomeTransientFailure, retryErr.Error()
	}
}
