package ingest

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fuelwatch/internal/logger"
	"fuelwatch/internal/models"
)

const (
	telemetryTopic = "fleet/telemetry/+" // vehicle id in the last level
	subscribeQoS   = 1                   // at-least-once; the pipeline's ordering guard handles redelivery
	connectTimeout = 5 * time.Second
	disconnectMs   = 250
)

// MQTTSource subscribes to the provider's telemetry feed and hands normalized
// samples to the pipeline.
type MQTTSource struct {
	client  mqtt.Client
	adapter *Adapter
	log     *logger.Logger
	emit    func(models.TelemetrySample)
}

// NewMQTTSource connects to the broker and wires reconnect logging. The URL
// accepts mqtt:// and mqtts:// schemes, credentials in userinfo.
func NewMQTTSource(brokerURL, clientID string, adapter *Adapter, log *logger.Logger, emit func(models.TelemetrySample)) (*MQTTSource, error) {
	parsed, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}

	var broker string
	switch parsed.Scheme {
	case "mqtt":
		broker = strings.Replace(brokerURL, "mqtt://", "tcp://", 1)
	case "mqtts":
		broker = strings.Replace(brokerURL, "mqtts://", "ssl://", 1)
	case "tcp", "ssl", "ws", "wss":
		broker = brokerURL
	default:
		return nil, fmt.Errorf("unsupported broker scheme %q", parsed.Scheme)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(false) // keep the subscription across reconnects
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetMaxReconnectInterval(10 * time.Second)

	if parsed.User != nil {
		opts.SetUsername(parsed.User.Username())
		if pw, ok := parsed.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warnw("telemetry feed connection lost", "err", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Infow("telemetry feed connected", "broker", parsed.Host)
	})

	src := &MQTTSource{
		client:  mqtt.NewClient(opts),
		adapter: adapter,
		log:     log,
		emit:    emit,
	}
	if token := src.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker: %w", token.Error())
	}
	return src, nil
}

// Start subscribes to the telemetry topic.
func (s *MQTTSource) Start() error {
	token := s.client.Subscribe(telemetryTopic, subscribeQoS, s.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", telemetryTopic, token.Error())
	}
	s.log.Infow("subscribed to telemetry feed", "topic", telemetryTopic)
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSource) Close() {
	s.client.Disconnect(disconnectMs)
}

func (s *MQTTSource) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var raw rawMessage
	if err := json.Unmarshal(msg.Payload(), &raw); err != nil {
		s.log.Warnw("undecodable telemetry message", "topic", msg.Topic(), "err", err)
		return
	}

	// Topic carries the vehicle id; the payload may repeat it, topic wins.
	if parts := strings.Split(msg.Topic(), "/"); len(parts) >= 3 && parts[len(parts)-1] != "" {
		raw.VehicleID = parts[len(parts)-1]
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		s.log.Warnw("telemetry message with bad timestamp", "vehicle", raw.VehicleID, "err", err)
		return
	}

	sample, err := s.adapter.Normalize(raw.VehicleID, ts, raw.Params)
	if err != nil {
		s.log.Warnw("dropped malformed sample", "err", err)
		return
	}
	s.emit(sample)
}
