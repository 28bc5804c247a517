package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/schoolhub-core/internal/infrastructure/config"
)

const testBroker = "127.0.0.1:1883"

// testConfig returns a configuration for a local broker at 127.0.0.1:1883.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to the local broker, skipping the test when none
// is listening.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testBroker, 500*time.Millisecond)
	if err != nil {
		t.Skipf("no MQTT broker at %s: %v", testBroker, err)
	}
	conn.Close()

	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Offline tests
// =============================================================================

func TestConnect_BrokerRefused(t *testing.T) {
	cfg := testConfig("schoolhub-test-refused")
	cfg.Broker.Port = 19998

	_, err := Connect(cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}
	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"qos too high", "schoolhub/test", nil, 3, ErrInvalidQoS},
		{"payload too large", "schoolhub/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "schoolhub/test", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishEvent_EmptyType(t *testing.T) {
	client := &Client{}
	if err := client.PublishEvent("", []byte("{}")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishEvent(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Subscribe("schoolhub/test", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Subscribe("schoolhub/test", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
	if err := client.Subscribe("schoolhub/test", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe(disconnected) error = %v, want ErrNotConnected", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after failures, want 0", client.SubscriptionCount())
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		payload    string
		wantStatus string
		wantReason string
	}{
		{buildOnlinePayload("core-1"), "online", ""},
		{buildOfflinePayload("core-1"), "offline", "graceful_shutdown"},
		{buildStatusPayload("offline", "core-1", "unexpected_disconnect"), "offline", "unexpected_disconnect"},
	}
	for _, tt := range tests {
		var got statusPayload
		if err := json.Unmarshal([]byte(tt.payload), &got); err != nil {
			t.Fatalf("payload %q is not JSON: %v", tt.payload, err)
		}
		if got.Status != tt.wantStatus || got.Reason != tt.wantReason || got.ClientID != "core-1" {
			t.Errorf("payload = %+v, want status %q reason %q", got, tt.wantStatus, tt.wantReason)
		}
		if _, err := time.Parse(time.RFC3339, got.Timestamp); err != nil {
			t.Errorf("timestamp %q: %v", got.Timestamp, err)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig("schoolhub-opts")
	cfg.Auth = config.MQTTAuthConfig{Username: "core", Password: "secret"}
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [ssl://127.0.0.1:1883]", opts.Servers)
	}
	if opts.Username != "core" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if opts.TLSConfig == nil {
		t.Error("TLSConfig not set with broker.tls")
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

// =============================================================================
// Topics
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"CoreEvent", Topics{}.CoreEvent("login"), "schoolhub/core/event/login"},
		{"SystemStatus", Topics{}.SystemStatus(), "schoolhub/system/status"},
		{"AllCoreEvents", Topics{}.AllCoreEvents(), "schoolhub/core/event/+"},
		{"AllTopics", Topics{}.AllTopics(), "schoolhub/#"},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
		}
	}
}

func TestEventType(t *testing.T) {
	tests := []struct {
		topic  string
		want   string
		wantOK bool
	}{
		{"schoolhub/core/event/login", "login", true},
		{"schoolhub/core/event/", "", false},
		{"schoolhub/core/event/login/extra", "", false},
		{"schoolhub/system/status", "", false},
	}
	for _, tt := range tests {
		got, ok := EventType(tt.topic)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("EventType(%q) = %q, %v; want %q, %v", tt.topic, got, ok, tt.want, tt.wantOK)
		}
	}
}

// =============================================================================
// Broker tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connectOrSkip(t, "schoolhub-test-connect")

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t, "schoolhub-test-close")

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	client := connectOrSkip(t, "schoolhub-test-subs")
	handler := func(string, []byte) error { return nil }

	topics := []string{
		"schoolhub/test/topic1",
		"schoolhub/test/topic2",
		"schoolhub/test/topic3",
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
	if !client.HasSubscription(topics[1]) {
		t.Errorf("HasSubscription(%s) = false, want true", topics[1])
	}
}

func TestPublishEvent_Roundtrip(t *testing.T) {
	pub := connectOrSkip(t, "schoolhub-test-pub")
	sub := connectOrSkip(t, "schoolhub-test-sub")

	type message struct {
		topic   string
		payload string
	}
	received := make(chan message, 1)
	var once sync.Once

	err := sub.Subscribe(Topics{}.AllCoreEvents(), 1, func(topic string, p []byte) error {
		once.Do(func() { received <- message{topic, string(p)} })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishEvent("login", []byte(`{"username":"admin1"}`)); err != nil {
		t.Fatalf("PublishEvent() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg.topic != "schoolhub/core/event/login" {
			t.Errorf("topic = %q, want schoolhub/core/event/login", msg.topic)
		}
		if msg.payload != `{"username":"admin1"}` {
			t.Errorf("payload = %q", msg.payload)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for event")
	}
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	client := connectOrSkip(t, "schoolhub-test-panic")
	logger := &recordingLogger{}
	client.SetLogger(logger)

	topic := "schoolhub/test/panic"
	called := make(chan struct{}, 1)
	err := client.Subscribe(topic, 1, func(string, []byte) error {
		called <- struct{}{}
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if err := client.PublishString(topic, "x", 1, false); err != nil {
		t.Fatalf("PublishString() error = %v", err)
	}

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if logger.errorCount() > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("panic was not logged")
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
