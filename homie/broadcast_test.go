package homie

// test broadcast message handling.

import (
	"context"
	"testing"
	"time"
)

func TestBroadcast(t *testing.T) {
	broadcastLevel := ""
	broadcastValue := ""
	myLevel := "alarming"
	myLevelValue := "now!"

	getTestClient(t)
	cleanMqtt(t)
	d := createTestDevice()
	createTestNode(d, "a-node")
	d.SetBroadcastHandler(func(d *Device, level, value string) {
		broadcastLevel = level
		broadcastValue = value
	})

	// Run until cancelled
	waitChan := make(chan bool, 1)
	c, cfl := context.WithCancel(context.Background())
	go d.RunWithContext(c, waitChan)
	time.Sleep(500 * time.Millisecond)

	// send a broadcast
	token := d.client.Publish(testTopicBase+"/$broadcast/"+myLevel, 1, true, myLevelValue)
	token.Wait()
	if token.Error() != nil {
		t.Errorf("broadcast failed with error: %v", token.Error())
	}
	time.Sleep(250 * time.Millisecond)
	if broadcastLevel != myLevel {
		t.Errorf("broadcast level mismatch.  Expected %q got %q", myLevel, broadcastLevel)
	}
	if broadcastValue != myLevelValue {
		t.Errorf("broadcast value mismatch.  Expected %q got %q", myLevelValue, broadcastValue)
	}

	// clear the retained broadcast, terminate the run
	d.client.Publish(testTopicBase+"/$broadcast/"+myLevel, 1, true, "").Wait()
	cfl()

	// wait for Run to come back
	<-waitChan
	cleanMqtt(t)
	d.Destroy()
}
