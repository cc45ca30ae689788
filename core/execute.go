package core

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// execute runs fn as one atomic operation. Cancellation is only observed
// before the operation starts; once running it completes or rolls back.
func (n *Node) execute(ctx context.Context, op string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := n.tracer.Start(ctx, "node."+op)
	defer span.End()

	err := n.withLock(op, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.String("state.root", n.root.Hex()))
	return nil
}

func (n *Node) withLock(op string, fn func() error) error {
	start := time.Now()
	n.mu.Lock()
	defer n.mu.Unlock()

	err := n.apply(fn)
	n.metrics.ObserveOperation(op, err, time.Since(start))
	if err != nil {
		n.logger.Warn("operation rejected", "op", op, "error", err)
		return err
	}
	n.logger.Debug("operation committed", "op", op, "root", n.root.Hex())
	return nil
}

func (n *Node) apply(fn func() error) error {
	snap := n.state.Snapshot()
	mark := n.journal.Mark()
	if err := fn(); err != nil {
		n.state.RevertToSnapshot(snap)
		n.journal.Rewind(mark)
		return err
	}
	n.state.DiscardSnapshot(snap)

	if n.state.Root() != n.root {
		root, err := n.state.Commit()
		if err != nil {
			n.journal.Rewind(mark)
			return fmt.Errorf("core: commit: %w", err)
		}
		n.root = root
	}
	for _, evt := range n.journal.Drain() {
		n.sinks.Emit(evt)
	}
	n.publishGauges()
	return nil
}

// view runs a read-only fn under the node lock. Trie reads resolve nodes
// lazily, so reads are serialised with writes.
func (n *Node) view(fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return fn()
}

func (n *Node) publishGauges() {
	totals, err := n.supervisor.Totals()
	if err != nil {
		n.logger.Debug("kpi gauges skipped", "error", err)
		return
	}
	supply, err := n.token.TotalSupply()
	if err != nil {
		n.logger.Debug("kpi gauges skipped", "error", err)
		return
	}
	n.metrics.SetKPIs(totals.TotalLoanAmount, totals.TotalLockedAmount, supply)
	if buys, sells, err := n.exchange.OrderCounts(); err == nil {
		n.metrics.SetOrderBook(buys, sells)
	}
}
