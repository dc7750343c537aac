package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/deckscan-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	ackTimeout     = 5 * time.Second
	keepAlive      = 60 * time.Second
	quiesceMillis  = 1000

	maxQoS         = 2
	maxPayloadSize = 1 << 20
	tlsMinVersion  = tls.VersionTLS12
)

// Status values and reasons carried on the retained status topic.
const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonShutdown   = "graceful_shutdown"
	reasonDisconnect = "unexpected_disconnect"
)

// statusMessage is the retained payload of deckscan/{instrument}/status.
type statusMessage struct {
	Status     string    `json:"status"`
	Instrument string    `json:"instrument"`
	ClientID   string    `json:"client_id"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// statusPayload encodes a status message stamped with the current UTC time.
func statusPayload(instrument, clientID, status, reason string) []byte {
	payload, err := json.Marshal(statusMessage{
		Status:     status,
		Instrument: instrument,
		ClientID:   clientID,
		Reason:     reason,
		Timestamp:  time.Now().UTC().Truncate(time.Second),
	})
	if err != nil {
		// Unreachable: every field is a plain string or time.
		return []byte(`{"status":"` + status + `"}`)
	}
	return payload
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps the mqtt config section onto paho options.
//
// Sessions are clean; subscriptions survive reconnects because the Client
// replays them itself. Reconnect delays are configured in seconds.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetKeepAlive(keepAlive).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		// Command handlers publish replies from inside the callback.
		SetOrderMatters(false)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// configureLWT registers the offline status the broker publishes on our
// behalf when the connection drops without a DISCONNECT.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	payload := statusPayload(topics.Instrument, clientID, statusOffline, reasonDisconnect)
	opts.SetBinaryWill(topics.Status(), payload, 1, true)
}
