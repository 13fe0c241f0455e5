package realtime

import (
	"fmt"

	"courierlink/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttConn adapts a paho client to the conn interface.
type mqttConn struct {
	client    mqtt.Client
	onMessage func([]byte)
}

// dialMQTT establishes a broker connection with paho's own retry machinery
// disabled; the Channel owns reconnect scheduling.
func dialMQTT(cfg *config.RealtimeConfig, clientID string, onMessage func([]byte), onLost func(error)) (conn, error) {
	broker := fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			onLost(err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &mqttConn{client: client, onMessage: onMessage}, nil
}

func (c *mqttConn) Subscribe(topic string) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		c.onMessage(msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *mqttConn) Unsubscribe(topic string) error {
	token := c.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

func (c *mqttConn) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	token.Wait()
	return token.Error()
}

func (c *mqttConn) Disconnect() {
	c.client.Disconnect(250)
}
