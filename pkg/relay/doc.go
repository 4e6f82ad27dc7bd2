// Package relay is a resilient in-process event pipeline: publishers
// hand events to subscribed handlers through an idempotency store, a
// four-lane priority ordering queue, per-handler circuit breakers,
// bounded retry with jittered backoff, and a durable dead letter store.
//
// Basic usage:
//
//	p := relay.New()
//	defer p.Close()
//
//	p.Subscribe("habit.created", event.HandlerFunc(func(ctx context.Context, evt *event.Event) error {
//		// handle the event
//		return nil
//	}), relay.WithPriority(event.PriorityHigh))
//
//	ticket, err := p.Publish(ctx, "habit.created", payload)
//	if err != nil {
//		return err
//	}
//	result, err := ticket.Wait(ctx)
//
// Publish returns a Ticket immediately; the handler runs on the worker
// pool. PublishSync blocks plain callers until the terminal result, but
// never blocks handler code publishing follow-up events from inside a
// dispatch worker: those calls come back with SyncOutcome.Scheduled set
// and a live Ticket.
//
// Duplicate events (same type and payload within the idempotency TTL)
// resolve immediately as successful without reaching any handler.
// Events whose handler keeps failing transiently are retried up to the
// policy budget with exponential backoff; permanent failures and
// exhausted budgets land in the dead letter store, where DeadLetters,
// Requeue, and Purge operate on them.
package relay
