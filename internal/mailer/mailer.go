package mailer

import (
	"crypto/tls"
	"errors"
	"net/smtp"
	"sync/atomic"
	"time"

	"github.com/knadh/smtppool"

	"cinema-auth/internal/observability"
)

// serverPool ties a pool to the server it was built from, so logging
// stays correct even when some configured servers were skipped.
type serverPool struct {
	server Server
	pool   *smtppool.Pool
}

// Client sends plain-text notification mail over a pool of SMTP
// connections. Sends are not retried; callers decide what a failed
// notification means for their flow.
type Client struct {
	cfg     Config
	pools   []serverPool
	counter uint64
	logger  *observability.Logger
}

func NewClient(cfg Config, logger *observability.Logger) (*Client, error) {
	pools := make([]serverPool, 0, len(cfg.Servers))
	for _, server := range cfg.Servers {
		pool, err := connectToPool(server)
		if err != nil {
			logger.Error("smtp_pool_setup_failed", map[string]any{
				"server": server.Address(),
				"error":  err.Error(),
			})
			continue
		}
		pools = append(pools, serverPool{server: server, pool: pool})
	}
	if len(pools) == 0 {
		return nil, errors.New("no reachable smtp server in the pool")
	}

	return &Client{cfg: cfg, pools: pools, logger: logger}, nil
}

func connectToPool(server Server) (*smtppool.Pool, error) {
	auth := smtp.PlainAuth("", server.AuthData.Username, server.AuthData.Password, server.Host)
	if server.AuthData.Username == "" && server.AuthData.Password == "" {
		auth = nil
	}

	connections := server.Connections
	if connections <= 0 {
		connections = 2
	}
	timeout := time.Duration(server.SendTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return smtppool.New(smtppool.Opt{
		Host:            server.Host,
		Port:            server.Port,
		MaxConns:        connections,
		IdleTimeout:     timeout,
		PoolWaitTimeout: timeout,
		Auth:            auth,
		TLSConfig: &tls.Config{
			InsecureSkipVerify: server.InsecureSkipVerify,
			ServerName:         server.Host,
		},
	})
}

// Send delivers one message, round-robining across the usable servers.
func (c *Client) Send(to, subject, body string) error {
	index := atomic.AddUint64(&c.counter, 1) % uint64(len(c.pools))
	selected := c.pools[index]

	err := selected.pool.Send(smtppool.Email{
		From:    c.cfg.From,
		To:      []string{to},
		Subject: subject,
		Text:    []byte(body),
	})
	if err != nil {
		c.logger.Error("smtp_send_failed", map[string]any{
			"server": selected.server.Address(),
			"error":  err.Error(),
		})
	}

	return err
}

// Close releases every pooled connection.
func (c *Client) Close() {
	for _, p := range c.pools {
		p.pool.Close()
	}
}
