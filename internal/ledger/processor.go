package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/payflow/internal/event"
	"github.com/roach88/payflow/internal/store"
)

// Summary reports what happened to every record of a run.
type Summary struct {
	Records         int `json:"records"`          // records read from input
	Applied         int `json:"applied"`          // events applied successfully
	RejectedInvalid int `json:"rejected_invalid"` // records that failed validation
	RejectedRule    int `json:"rejected_rule"`    // events rejected by a ledger rule
}

func (s *Summary) add(o Summary) {
	s.Records += o.Records
	s.Applied += o.Applied
	s.RejectedInvalid += o.RejectedInvalid
	s.RejectedRule += o.RejectedRule
}

// Processor drives validated events through per-client accounts over one
// shared transaction store.
//
// Records are validated, routed to the owning client's account and applied
// in arrival order. A rejected record — validation failure or rule
// violation — is logged and counted, never fatal; processing always
// continues with the next record.
//
// With workers > 1 the processor fans records out to shards keyed by
// client id. Events for one client always land on the same shard and are
// applied in arrival order, satisfying the per-client ordering guarantee;
// ordering across clients is unconstrained. The store is the only resource
// the shards share.
type Processor struct {
	txs      store.TxStore
	log      *slog.Logger
	tokenGen RunTokenGenerator
	workers  int

	mu       sync.Mutex
	accounts map[uint16]*Account
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for per-record rejection reporting.
// Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Processor) { p.log = log }
}

// WithWorkers sets the number of concurrent shards. Values below 2 select
// the sequential path.
func WithWorkers(n int) Option {
	return func(p *Processor) { p.workers = n }
}

// WithTokenGenerator overrides the run token generator (for tests).
func WithTokenGenerator(g RunTokenGenerator) Option {
	return func(p *Processor) { p.tokenGen = g }
}

// New creates a Processor over the given shared transaction store.
func New(txs store.TxStore, opts ...Option) *Processor {
	p := &Processor{
		txs:      txs,
		log:      slog.Default(),
		tokenGen: UUIDv7Generator{},
		workers:  1,
		accounts: make(map[uint16]*Account),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process consumes records until the channel is closed or ctx is cancelled.
//
// The returned error is non-nil only for a cancelled context or a store
// backend fault; rejected records are reported through the Summary and the
// logger instead.
func (p *Processor) Process(ctx context.Context, records <-chan event.Record) (Summary, error) {
	log := p.log.With("run", p.tokenGen.Generate())

	var sum Summary
	var err error
	if p.workers > 1 {
		sum, err = p.processSharded(ctx, records, log)
	} else {
		sum, err = p.processSequential(ctx, records, log)
	}
	if err != nil {
		return sum, err
	}

	log.Info("processing complete",
		"records", sum.Records,
		"applied", sum.Applied,
		"rejected_invalid", sum.RejectedInvalid,
		"rejected_rule", sum.RejectedRule,
		"clients", len(p.accounts))
	return sum, nil
}

func (p *Processor) processSequential(ctx context.Context, records <-chan event.Record, log *slog.Logger) (Summary, error) {
	var sum Summary
	for {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return sum, nil
			}
			if err := p.handle(rec, p.accounts, &sum, log); err != nil {
				return sum, err
			}
		}
	}
}

// processSharded fans records out to worker shards by client id. Each shard
// owns a private account map, so an account is only ever touched by one
// goroutine; the shared store serializes cross-shard id claims itself.
func (p *Processor) processSharded(ctx context.Context, records <-chan event.Record, log *slog.Logger) (Summary, error) {
	type shard struct {
		ch  chan event.Record
		sum Summary
		err error
	}

	shards := make([]*shard, p.workers)
	var wg sync.WaitGroup
	for i := range shards {
		s := &shard{ch: make(chan event.Record, 64)}
		shards[i] = s
		wg.Add(1)
		go func() {
			defer wg.Done()
			accounts := make(map[uint16]*Account)
			for rec := range s.ch {
				if err := p.handle(rec, accounts, &s.sum, log); err != nil {
					s.err = err
					// Drain so the feeder never blocks.
					for range s.ch {
					}
					return
				}
			}
			p.mu.Lock()
			for id, acct := range accounts {
				p.accounts[id] = acct
			}
			p.mu.Unlock()
		}()
	}

	closeAll := func() {
		for _, s := range shards {
			close(s.ch)
		}
	}

	var ctxErr error
feed:
	for {
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case rec, ok := <-records:
			if !ok {
				break feed
			}
			shards[int(rec.Client)%p.workers].ch <- rec
		}
	}
	closeAll()
	wg.Wait()

	var sum Summary
	for _, s := range shards {
		sum.add(s.sum)
		if s.err != nil && ctxErr == nil {
			ctxErr = s.err
		}
	}
	return sum, ctxErr
}

// handle validates and applies one record against the given account map,
// updating the summary. The returned error is reserved for store backend
// faults; rejections are logged and counted.
func (p *Processor) handle(rec event.Record, accounts map[uint16]*Account, sum *Summary, log *slog.Logger) error {
	sum.Records++

	ev, err := event.FromRecord(rec)
	if err != nil {
		sum.RejectedInvalid++
		log.Warn("record rejected",
			"type", rec.Type, "client", rec.Client, "tx", rec.Tx, "reason", err)
		return nil
	}

	acct, ok := accounts[ev.Client]
	if !ok {
		acct = NewAccount(ev.Client, p.txs)
		accounts[ev.Client] = acct
	}

	if err := acct.Apply(ev); err != nil {
		var re *RuleError
		if errors.As(err, &re) {
			sum.RejectedRule++
			log.Warn("event rejected",
				"kind", ev.Kind, "client", ev.Client, "tx", ev.Tx, "code", re.Code, "reason", re.Message)
			return nil
		}
		return err
	}
	sum.Applied++
	return nil
}

// Balances returns a snapshot of every account ever seen, sorted by client
// id for deterministic output.
func (p *Processor) Balances() []Balance {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Balance, 0, len(p.accounts))
	for _, acct := range p.accounts {
		out = append(out, acct.Balance())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}

// Account returns the account for a client id, if one exists. Intended for
// tests and diagnostics.
func (p *Processor) Account(id uint16) (*Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[id]
	return acct, ok
}
