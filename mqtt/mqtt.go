package mqtt

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

type Config struct {
	// Address for MQTT broker (e.g. "tcp://foobar.com:1883"); MQTT is
	// disabled if empty
	BrokerAddr string `yaml:"broker"`
	// Username for MQTT broker (ignored if empty)
	Username string `yaml:"username"`
	// Password for MQTT broker (ignored if empty)
	Password string `yaml:"password"`
	// Client ID for MQTT broker (ignored if empty)
	ClientID string `yaml:"client_id"`
	// MQTT topic to which we'll publish decoded commands
	TopicCommand string `yaml:"topic_command"`
	// QoS for published commands
	QoS byte `yaml:"qos"`
}

// NewClient creates a client and starts connecting it in the background,
// retrying until the broker is reachable. Publishing before then fails.
func NewClient(c Config, log zerolog.Logger) MQTT.Client {
	log = log.With().Str("component", "mqtt").Logger()

	opts := MQTT.NewClientOptions()
	opts.AddBroker(c.BrokerAddr)
	opts.SetClientID(c.ClientID)
	opts.SetUsername(c.Username)
	opts.SetPassword(c.Password)
	opts.SetDefaultPublishHandler(
		func(client MQTT.Client, msg MQTT.Message) {
			log.Debug().Str("topic", msg.Topic()).Bytes("payload", msg.Payload()).Msg("recv")
		})
	opts.SetOnConnectHandler(
		func(client MQTT.Client) {
			log.Info().Str("broker", c.BrokerAddr).Msg("connected")
		})
	opts.SetConnectionLostHandler(
		func(client MQTT.Client, err error) {
			log.Warn().Err(err).Msg("connection lost")
		})
	opts.SetReconnectingHandler(
		func(client MQTT.Client, options *MQTT.ClientOptions) {
			log.Info().Msg("reconnecting")
		})
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	client := MQTT.NewClient(opts)

	go func(client MQTT.Client) {
		for {
			token := client.Connect()
			if token.Wait() && token.Error() != nil {
				log.Warn().Err(token.Error()).Msg("unable to connect")
				<-time.After(10 * time.Second)
			} else {
				break
			}
		}
	}(client)

	return client
}

// Event is the JSON payload published for every decoded command.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Command string    `json:"command"`
	Bits    int       `json:"bits"`
	// Relay the command is bound to, if any
	Relay string `json:"relay,omitempty"`
	// Where the command came from: "rf" or "http"
	Source string `json:"source"`
}

// NewEvent stamps a command with a fresh, time-ordered ID.
func NewEvent(t time.Time, command, relay, source string) Event {
	return Event{
		ID:      newID(t),
		Time:    t.UTC(),
		Command: command,
		Bits:    len(command),
		Relay:   relay,
		Source:  source,
	}
}

// Shared so that IDs within one millisecond still differ, and increase.
var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

func newID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Publisher sends command events to a topic.
type Publisher struct {
	Client  MQTT.Client
	Topic   string
	QoS     byte
	Timeout time.Duration
}

// Publish sends ev and waits up to Timeout for the broker to acknowledge
// it (QoS > 0 only).
func (p *Publisher) Publish(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	token := p.Client.Publish(p.Topic, p.QoS, false, payload)
	if !token.WaitTimeout(p.Timeout) {
		return fmt.Errorf("publish %s: timed out after %s", ev.ID, p.Timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.ID, err)
	}
	return nil
}
