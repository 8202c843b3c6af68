package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/nrfscan/scanner"
)

const (
	mqttRecordCountInfo = 1000

	defaultMQTTTopic   = "nrfscan/records"
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
)

// MQTT publishes each record as a JSON message.
type MQTT struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string

	client mqtt.Client
}

func (m *MQTT) connect() error {
	clientID := m.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("nrfscan-%s", uuid.NewString()[:8])
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.Broker)
	opts.SetClientID(clientID)
	if m.Username != "" {
		opts.SetUsername(m.Username)
		opts.SetPassword(m.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		glog.Infof("connected to MQTT broker %s", m.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		glog.Warningf("MQTT connection lost: %s\n", err)
	})

	m.client = mqtt.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("timed out connecting to MQTT broker %s", m.Broker)
	}
	return token.Error()
}

func (m *MQTT) Write(ctx context.Context, records <-chan scanner.Record) error {
	if m.client == nil {
		if err := m.connect(); err != nil {
			return err
		}
	}
	defer m.client.Disconnect(250)

	topic := m.Topic
	if topic == "" {
		topic = defaultMQTTTopic
	}

	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for r := range records {
		counts["total"] += 1
		payload, err := json.Marshal(r)
		if err != nil {
			counts["error"] += 1
			glog.Warningf("error marshalling record to JSON: %s\n", err)
			continue
		}
		token := m.client.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(mqttPublishTimeout) {
			counts["error"] += 1
			glog.Warningf("timed out publishing record to %q\n", topic)
			continue
		}
		if err := token.Error(); err != nil {
			counts["error"] += 1
			glog.Warningf("error publishing record: %s\n", err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%mqttRecordCountInfo == 0 {
			glog.Infof("Record export counts: %+v\n", counts)
		}
	}
	return nil
}
