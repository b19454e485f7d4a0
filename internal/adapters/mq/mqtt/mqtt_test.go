package mqtt_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/okian/facegate/internal/adapters/mq/mqtt"
	"github.com/okian/facegate/internal/domain/model"
	"github.com/okian/facegate/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type message struct {
	topic   string
	qos     byte
	payload []byte
}

type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	publishErr error
	messages   []message
}

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connectErr == nil {
		c.connected = true
	}
	return doneToken(c.connectErr)
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func TestPublisher(t *testing.T) {
	ctx := context.Background()
	ev := model.AttendanceEvent{ID: "e1", Identity: "alice", Channel: model.Exit, Date: "2026-03-02", Time: "18:00:00", Confidence: 0.9}

	Convey("Given a connected publisher", t, func() {
		client := &fakeClient{}
		p := mqtt.New("tcp://broker:1883", mqtt.WithClient(client), mqtt.WithTopic("/site/gate/"), mqtt.WithQoS(2))
		So(p.Connect(ctx), ShouldBeNil)

		Convey("When an event is published", func() {
			So(p.Publish(ctx, ev), ShouldBeNil)

			Convey("Then it should go to the channel topic as JSON", func() {
				So(client.messages, ShouldHaveLength, 1)
				msg := client.messages[0]
				So(msg.topic, ShouldEqual, "site/gate/exit")
				So(msg.qos, ShouldEqual, 2)

				var got model.AttendanceEvent
				So(json.Unmarshal(msg.payload, &got), ShouldBeNil)
				So(got.Identity, ShouldEqual, "alice")
				So(got.Channel, ShouldEqual, model.Exit)
			})
		})

		Convey("When the broker rejects the publish", func() {
			client.publishErr = errors.New("not authorized")
			So(p.Publish(ctx, ev), ShouldNotBeNil)
		})

		Convey("When the publisher is closed", func() {
			So(p.Close(), ShouldBeNil)
			So(errors.Is(p.Publish(ctx, ev), mqtt.ErrNotConnected), ShouldBeTrue)
		})
	})

	Convey("Given a broker that refuses the connection", t, func() {
		client := &fakeClient{connectErr: errors.New("refused")}
		p := mqtt.New("tcp://broker:1883", mqtt.WithClient(client))

		So(p.Connect(ctx), ShouldNotBeNil)
		So(errors.Is(p.Publish(ctx, ev), mqtt.ErrNotConnected), ShouldBeTrue)
	})

	Convey("Given default options", t, func() {
		p := mqtt.New("tcp://broker:1883")
		So(p.Topic(model.Entry), ShouldEqual, "facegate/attendance/entry")
	})
}
