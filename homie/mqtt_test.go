package homie

//
// This file contains code to interface with the paho mqtt client.
// Used by test code only.  The broker tests need a local mosquitto (or
// equivalent) on 127.0.0.1:1883 and skip themselves when there isn't one.
//

import (
	"net"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const testBroker = "127.0.0.1:1883"

var (
	allTopics      map[string]string
	testClient     mqtt.Client
	timeoutChannel chan int = make(chan int, 10)
)

func getTestClient(t *testing.T) {
	c, err := net.DialTimeout("tcp", testBroker, 250*time.Millisecond)
	if err != nil {
		t.Skipf("no mqtt broker on %s, skipping", testBroker)
	}
	c.Close()

	// One shared client for the whole test run.
	if testClient != nil {
		return
	}

	opts := mqtt.NewClientOptions().AddBroker("tcp://" + testBroker).SetClientID("homie-test")
	opts.SetKeepAlive(60 * time.Second)
	opts.SetDefaultPublishHandler(func(client mqtt.Client, msg mqtt.Message) {
		topic := msg.Topic()

		// Ignore broadcast messages
		if strings.Contains(topic, "$broadcast") {
			return
		}

		// tell the world we are still working
		timeoutChannel <- 0

		allTopics[topic] = string(msg.Payload())
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		t.Fatalf("MQTT Connect failed: %v", token.Error())
	}
	testClient = client
}

func cleanMqtt(t *testing.T) {
	for topic := range getAllMqtt(t) {
		token := testClient.Publish(topic, 1, true, "")
		token.Wait()
	}
}

// get all the persistent messages and build a map of everything we know about everybody
func getAllMqtt(t *testing.T) map[string]string {
	allTopics = make(map[string]string)

	subscription := testTopicBase + "/#"

	if token := testClient.Subscribe(subscription, 0, nil); token.Wait() && token.Error() != nil {
		t.Errorf("MQTT Subscribe failed: %v", token.Error())
	}

	// Wait for 1 second after last message is received
	timer := time.NewTimer(time.Second)
waitLoop:
	for {
		select {
		case <-timeoutChannel:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(time.Second)
		case <-timer.C:
			break waitLoop
		}
	}

	if token := testClient.Unsubscribe(subscription); token.Wait() && token.Error() != nil {
		t.Errorf("MQTT Unsubscribe failed: %v", token.Error())
	}

	return allTopics
}

// verifyMqtt checks that every expected topic was seen with the
// expected payload.  A payload of "*" matches anything.  Returns what
// was collected for further checking.
func verifyMqtt(t *testing.T, expected map[string]string) map[string]string {
	stuff := getAllMqtt(t)

	for topic, payload := range expected {
		got, ok := stuff[topic]
		if !ok {
			t.Errorf("expected topic %s was never published", topic)
			continue
		}
		if payload != "*" && payload != got {
			t.Errorf("topic %s: expected %q got %q", topic, payload, got)
		}
	}

	return stuff
}
