package nats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lawknot/legal-assistant/internal/core/domain"
)

// StatusNotifier publishes terminal status changes on <prefix>.<documentID>
// so API replicas can wake long-polling readers.
type StatusNotifier struct {
	conn   *Conn
	prefix string
}

func NewStatusNotifier(conn *Conn, prefix string) *StatusNotifier {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "documents.status"
	}
	return &StatusNotifier{conn: conn, prefix: prefix}
}

func flushTimeout(ctx context.Context) time.Duration {
	const fallback = 2 * time.Second
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	return max(min(time.Until(deadline), fallback), 10*time.Millisecond)
}

func (n *StatusNotifier) subject(documentID string) string {
	return n.prefix + "." + documentID
}

func (n *StatusNotifier) PublishStatus(ctx context.Context, documentID string, status domain.DocumentStatus) error {
	return n.conn.publish(ctx, n.subject(documentID), []byte(status))
}

func (n *StatusNotifier) Watch(ctx context.Context, documentID string) (<-chan domain.DocumentStatus, func(), error) {
	if strings.ContainsAny(documentID, ".*> \t") || documentID == "" {
		return nil, nil, domain.WrapError(domain.ErrInvalidInput, "watch status", fmt.Errorf("invalid document id %q", documentID))
	}

	out := make(chan domain.DocumentStatus, 1)
	sub, err := n.conn.nc.Subscribe(n.subject(documentID), func(msg *nats.Msg) {
		status := domain.DocumentStatus(msg.Data)
		if !status.Valid() {
			return
		}
		select {
		case out <- status:
		default:
		}
	})
	if err != nil {
		return nil, nil, asTemporary("watch status", fmt.Errorf("nats subscribe: %w", err))
	}
	flush := func() error { return n.conn.nc.FlushTimeout(flushTimeout(ctx)) }
	if err := confirmSubscription(sub, flush); err != nil {
		return nil, nil, asTemporary("watch status", fmt.Errorf("nats flush: %w", err))
	}

	stop := func() {
		if err := sub.Unsubscribe(); err != nil {
			n.conn.logger.Debug("nats_unsubscribe_failed", "document_id", documentID, "error", err)
		}
	}
	return out, stop, nil
}
