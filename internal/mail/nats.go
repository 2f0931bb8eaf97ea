package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// envelope is the JSON payload published for an external mail relay.
type envelope struct {
	ID       string    `json:"id"`
	QueuedAt time.Time `json:"queued_at"`
	Message
}

// NATSMailer hands messages to a relay subscribed on subject. The message id
// doubles as the JetStream dedupe header.
type NATSMailer struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
	newID   func() string
}

func NewNATSMailer(conn *nats.Conn, subject string) (*NATSMailer, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	return &NATSMailer{
		conn:    conn,
		subject: subject,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}, nil
}

// ConnectNATS dials url with reconnect logging.
func ConnectNATS(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

func (m *NATSMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := envelope{ID: m.newID(), QueuedAt: m.now(), Message: msg}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode mail envelope: %w", err)
	}
	nm := nats.NewMsg(m.subject)
	nm.Header.Set(nats.MsgIdHdr, env.ID)
	nm.Header.Set("Mail-Kind", string(msg.Kind))
	nm.Data = data
	if err := m.conn.PublishMsg(nm); err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}
	return nil
}
