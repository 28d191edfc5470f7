package main

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// publisher sends one message to a topic.
type publisher interface {
	Publish(topic string, payload []byte) error
	Close()
}

type mqttPublisher struct {
	client  mqtt.Client
	qos     byte
	retain  bool
	timeout time.Duration
}

// dialMQTT connects to broker. It is a variable so tests can replace the
// broker.
var dialMQTT = func(broker, clientID string, qos byte, retain bool) (publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(false)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return &mqttPublisher{client: client, qos: qos, retain: retain, timeout: 10 * time.Second}, nil
}

func (p *mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	return token.Error()
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(250)
}

func runPublish(e *env, args []string) error {
	fs := newFlagSet(e, "publish")
	broker := fs.String("broker", "tcp://127.0.0.1:1883", "MQTT broker URL")
	topic := fs.String("topic", "cardash", "topic prefix; the event kind is appended")
	clientID := fs.String("client-id", "", "MQTT client id (default datdump-<random>)")
	qos := fs.Uint8("qos", 0, "MQTT quality of service, 0-2")
	retain := fs.Bool("retain", false, "publish retained messages")
	rate := fs.Float64("rate", 0, "messages per second, 0 for as fast as possible")
	cfgPath := fs.String("config", "", "chart config JSON file (units, timezone)")
	if ok, err := parse(fs, args); !ok {
		return err
	}
	if *qos > 2 {
		return fmt.Errorf("%w: qos must be 0, 1 or 2", errUsage)
	}
	if *rate < 0 {
		return fmt.Errorf("%w: rate must not be negative", errUsage)
	}
	if *clientID == "" {
		*clientID = "datdump-" + uuid.NewString()[:8]
	}
	cfg, err := chartConfig(*cfgPath)
	if err != nil {
		return err
	}
	files, err := loadFiles(e, fs.Args())
	if err != nil {
		return err
	}

	pub, err := dialMQTT(*broker, *clientID, *qos, *retain)
	if err != nil {
		return err
	}
	defer pub.Close()

	var tick <-chan time.Time
	if *rate > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
		defer ticker.Stop()
		tick = ticker.C
	}

	conv := newConverter(cfg)
	sent := 0
	for _, df := range files {
		for _, ev := range df.Events {
			r, ok := conv.record(df.Name(), ev)
			if !ok {
				continue
			}
			payload, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if tick != nil {
				<-tick
			}
			if err := pub.Publish(*topic+"/"+r.Kind, payload); err != nil {
				return fmt.Errorf("after %d messages: %w", sent, err)
			}
			sent++
		}
	}
	fmt.Fprintf(e.stdout, "published %d messages to %s\n", sent, *broker)
	return nil
}
