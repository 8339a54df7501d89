package changefeed

import (
	"context"
	"fmt"

	"orderflow-be/internal/logger"
	"orderflow-be/internal/metrics"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PostgresSource listens on a NOTIFY channel fed by the orders and
// order_items triggers.
type PostgresSource struct {
	dsn     string
	channel string
}

func NewPostgresSource(dsn, channel string) *PostgresSource {
	return &PostgresSource{dsn: dsn, channel: channel}
}

func (s *PostgresSource) Listen(ctx context.Context, handle Handler) error {
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return fmt.Errorf("connect listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", s.channel, err)
	}

	log := logger.Named("changefeed").With(zap.String("source", "postgres"), zap.String("channel", s.channel))
	log.Info("listening for row changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		deliver(log, []byte(n.Payload), handle)
	}
}

// deliver decodes one payload and hands it on; bad payloads are logged and skipped.
func deliver(log *zap.Logger, payload []byte, handle Handler) {
	c, err := Decode(payload)
	if err != nil {
		metrics.Default.Counter(metrics.NotificationsDropped).Inc()
		log.Warn("dropping malformed change", zap.Error(err), zap.ByteString("payload", payload))
		return
	}
	handle(c)
}

// PostgresDSN builds a pgx connection URL from discrete settings.
func PostgresDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, dbname)
}
