package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"hive13/rfremote/mqtt"
)

// Publish a few synthetic command events, to check a broker and whatever
// listens on the command topic.
func publish(p *mqtt.Publisher, command string, num int) {
	for i := 0; i < num; i++ {
		ev := mqtt.NewEvent(time.Now(), command, "", "test")
		fmt.Printf("%s %s\n", ev.ID, ev.Command)
		if err := p.Publish(ev); err != nil {
			fmt.Printf("  failed: %s\n", err)
		}
		time.Sleep(time.Second)
	}
}

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker")
	topic := flag.String("topic", "rfremote/command", "Topic to publish to")
	command := flag.String("command", "0110100110", "Command bits to publish")
	num := flag.Int("n", 10, "Number of events")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg := mqtt.Config{
		BrokerAddr:   *broker,
		ClientID:     "rfremote-test",
		TopicCommand: *topic,
	}

	client := mqtt.NewClient(cfg, log)
	defer client.Disconnect(250)
	time.Sleep(time.Second)

	publish(&mqtt.Publisher{Client: client, Topic: *topic, QoS: 1, Timeout: 5 * time.Second}, *command, *num)
}
