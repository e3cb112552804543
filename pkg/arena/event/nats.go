package event

import (
	"context"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/arena/pkg/arena/store"
)

// NATSConfig holds the configuration for the NATS connection.
type NATSConfig struct {
	Name            string `env:"ARENA_NATS_NAME" envDefault:"arena"`
	URL             string `env:"ARENA_NATS_URL"`
	CredentialsFile string `env:"ARENA_NATS_CREDENTIALS_FILE"`

	// SubjectPrefix is the first token of every published subject.
	SubjectPrefix string `env:"ARENA_NATS_SUBJECT_PREFIX" envDefault:"arena"`
}

// Validate validates the NATS configuration and returns an error if invalid.
func (cfg NATSConfig) Validate() error {
	if cfg.URL == "" {
		return eris.New("NATS URL is required")
	}
	if cfg.SubjectPrefix == "" || strings.ContainsAny(cfg.SubjectPrefix, " *>") {
		return eris.Errorf("invalid subject prefix: %q", cfg.SubjectPrefix)
	}
	return nil
}

// LoadNATSConfig parses the NATS configuration from the environment.
func LoadNATSConfig() (NATSConfig, error) {
	cfg, err := env.ParseAs[NATSConfig]()
	if err != nil {
		return NATSConfig{}, eris.Wrap(err, "failed to parse NATS config")
	}
	return cfg, nil
}

// Client is a NATS connection with connection lifecycle logging.
type Client struct {
	*nats.Conn
	log zerolog.Logger
	cfg NATSConfig
}

// NewClient connects to NATS. The configuration is read from the environment and can be overridden with options.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg, err := LoadNATSConfig()
	if err != nil {
		return nil, err
	}
	c := &Client{log: zerolog.Nop(), cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "invalid NATS config")
	}

	natsOpts := []nats.Option{
		nats.Name(c.cfg.Name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(5 * time.Second),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.cfg.CredentialsFile != "" {
		natsOpts = append(natsOpts, nats.UserCredentials(c.cfg.CredentialsFile))
	}

	conn, err := nats.Connect(c.cfg.URL, natsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to NATS server")
	}
	c.Conn = conn

	c.log.Info().
		Str("url", c.ConnectedUrl()).
		Str("name", c.cfg.Name).
		Msg("Connected to NATS server")
	return c, nil
}

// Config returns the configuration the client connected with.
func (c *Client) Config() NATSConfig {
	return c.cfg
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Drain(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to drain NATS connection")
		c.Conn.Close()
	}
}

func (c *Client) handleDisconnect(nc *nats.Conn, err error) {
	log := c.log.With().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Logger()
	if err != nil {
		log.Error().Err(err).Msg("Disconnected from NATS with error")
	} else {
		log.Warn().Msg("Disconnected from NATS")
	}
}

func (c *Client) handleReconnect(nc *nats.Conn) {
	c.log.Info().
		Str("nats_url", nc.ConnectedUrl()).
		Uint64("reconnect_attempts", nc.Reconnects).
		Msg("Reconnected to NATS")
}

func (c *Client) handleClosed(nc *nats.Conn) {
	if err := nc.LastError(); err != nil {
		c.log.Warn().Err(err).Msg("NATS connection closed with error")
		return
	}
	c.log.Info().Msg("NATS connection closed")
}

func (c *Client) handleError(_ *nats.Conn, sub *nats.Subscription, err error) {
	subject := ""
	if sub != nil {
		subject = sub.Subject
	}
	c.log.Error().Err(err).Str("subject", subject).Msg("NATS subscription error occurred")
}

// ClientOption defines a function that can modify a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithNATSConfig replaces the configuration read from the environment.
func WithNATSConfig(cfg NATSConfig) ClientOption {
	return func(c *Client) {
		c.cfg = cfg
	}
}

// -------------------------------------------------------------------------------------------------
// Publisher
// -------------------------------------------------------------------------------------------------

// Publisher publishes every change as a JSON Event on <prefix>.<table>.<op>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewPublisher creates a Publisher over conn.
func NewPublisher(conn *nats.Conn, prefix string, log zerolog.Logger) (*Publisher, error) {
	if conn == nil {
		return nil, eris.New("NATS connection cannot be nil")
	}
	if prefix == "" {
		return nil, eris.New("subject prefix cannot be empty")
	}
	return &Publisher{conn: conn, prefix: prefix, log: log}, nil
}

// Subject returns the subject a change is published on.
func (p *Publisher) Subject(table string, op store.Op) string {
	return p.prefix + "." + table + "." + string(op)
}

// Publish sends the events of one commit. Publishing is buffered by the NATS client, so this does not wait for the
// server.
func (p *Publisher) Publish(commit store.Commit) error {
	for _, e := range FromCommit(commit).Events {
		data, err := marshal(e)
		if err != nil {
			return err
		}
		if err := p.conn.Publish(p.Subject(e.Table, e.Op), data); err != nil {
			return eris.Wrapf(err, "failed to publish %s/%s", e.Table, e.Key)
		}
	}
	return nil
}

// Subscriber returns a store subscriber that publishes every commit. Publish failures are logged; the commit has
// already been applied.
func (p *Publisher) Subscriber() store.Subscriber {
	return func(_ context.Context, commit store.Commit) {
		if err := p.Publish(commit); err != nil {
			p.log.Error().Err(err).Msg("failed to publish commit")
		}
	}
}
