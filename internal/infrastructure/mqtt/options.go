package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/bestin-bridge/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial broker connection in Connect.
	connectTimeout = 10 * time.Second

	// opTimeout bounds publish, subscribe, and unsubscribe token waits.
	opTimeout = 5 * time.Second

	// disconnectQuiesce is the shutdown grace for in-flight messages,
	// in milliseconds as paho expects.
	disconnectQuiesce = 1000

	// keepAlive is the PING interval for dead-connection detection.
	keepAlive = 60 * time.Second

	maxQoS = 2
)

// buildClientOptions maps the mqtt section of config.yaml onto paho
// options: tcp or ssl broker URL, optional credentials, clean session,
// and auto-reconnect between the configured delay bounds.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Fresh session on every connect; the retained state topics rebuild
	// any consumer's view, so a persistent broker session buys nothing.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	return opts
}
