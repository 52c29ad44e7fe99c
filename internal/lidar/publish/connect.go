package publish

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/nearfilter/internal/monitoring"
)

// ConnectOptions configures the broker connection.
type ConnectOptions struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Username string
	Password string
}

// Connect dials the broker and waits for the first connection. Paho keeps
// reconnecting in the background after that.
func Connect(ctx context.Context, opts ConnectOptions) (mqtt.Client, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "nearfilter"
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(5 * time.Second)
	co.SetMaxReconnectInterval(60 * time.Second)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetOrderMatters(false)
	co.SetOnConnectHandler(func(mqtt.Client) {
		monitoring.Logf("connected to MQTT broker %s", opts.Broker)
	})
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		monitoring.Logf("MQTT connection lost: %v", err)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(250)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}
	return client, nil
}
