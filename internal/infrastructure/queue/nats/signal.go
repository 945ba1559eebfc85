package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const workerQueueGroup = "analysis-workers"

// JobSignal announces newly enqueued analysis jobs. Messages carry only the
// document id; the durable queue decides who runs the job.
type JobSignal struct {
	conn    *Conn
	subject string
}

func NewJobSignal(conn *Conn, subject string) *JobSignal {
	if strings.TrimSpace(subject) == "" {
		subject = "analysis.jobs"
	}
	return &JobSignal{conn: conn, subject: subject}
}

func (s *JobSignal) PublishJobEnqueued(ctx context.Context, documentID string) error {
	return s.conn.publish(ctx, s.subject, []byte(documentID))
}

// SubscribeJobEnqueued blocks until ctx is done, invoking handler for each
// signal received by this member of the worker queue group.
func (s *JobSignal) SubscribeJobEnqueued(ctx context.Context, handler func(context.Context, string)) error {
	sub, err := s.conn.nc.QueueSubscribe(s.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		handler(ctx, string(msg.Data))
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := confirmSubscription(sub, s.conn.nc.Flush); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := s.conn.nc.FlushTimeout(5 * time.Second); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// confirmSubscription waits for the server to register sub and drops the
// subscription when it cannot be confirmed.
func confirmSubscription(sub interface{ Unsubscribe() error }, flush func() error) error {
	if err := flush(); err != nil {
		_ = sub.Unsubscribe()
		return err
	}
	return nil
}
