package database

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-engine/internal/config"
)

// NewNATSConn connects to the broker carrying judge requests.
func NewNATSConn(cfg *config.Config, log zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("exstem-engine"),
		nats.MaxReconnects(-1),
		nats.Timeout(connectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Msg("NATS connected")

	return nc, nil
}
