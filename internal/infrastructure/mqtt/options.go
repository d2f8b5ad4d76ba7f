package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/printwatch/printwatch-core/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial broker connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for a publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long pending operations get to
	// finish on disconnect, in milliseconds.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the connection keepalive interval.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest QoS level MQTT defines.
	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps the MQTT config section onto paho client
// options: broker URL, identity, credentials, auto-reconnect, and TLS.
// Sessions are clean; the announcer republishes retained state on
// reconnect, so there is nothing worth persisting broker-side.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// brokerURL renders the broker address, choosing the scheme from the
// TLS flag.
func brokerURL(broker config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, broker.Host, broker.Port)
}

// statusPayload is the body of messages on the system status topic,
// including the broker-published last will.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p statusPayload) encode() string {
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(p)
	if err != nil {
		// Marshalling a flat string struct cannot fail; keep the
		// fallback minimal rather than threading an error outward.
		return `{"status":"` + p.Status + `"}`
	}
	return string(body)
}

// configureLWT registers the last-will message the broker publishes if
// this client drops without a graceful disconnect. Retained at QoS 1 so
// late subscribers still learn the service is gone.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	will := statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   "unexpected_disconnect",
	}
	opts.SetWill(Topics{}.SystemStatus(), will.encode(), 1, true)
}

// buildOnlinePayload is the system status body published after each
// successful (re)connect.
func buildOnlinePayload(clientID string) string {
	return statusPayload{Status: "online", ClientID: clientID}.encode()
}

// buildOfflinePayload is the system status body published during
// graceful shutdown, before the LWT would ever fire.
func buildOfflinePayload(clientID string) string {
	return statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   "graceful_shutdown",
	}.encode()
}
