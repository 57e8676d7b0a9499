package output

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kwv/geoconflate/validate"
)

// ErrNotConnected is returned when publishing without a live broker
// connection
var ErrNotConnected = eris.New("MQTT client not connected")

// MQTTOptions configures the broker connection
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// ConnectMQTT connects to the broker and waits for the connection. An empty
// broker disables publication and returns a nil client.
func ConnectMQTT(opts MQTTOptions) (mqtt.Client, error) {
	if opts.Broker == "" {
		zap.L().Info("MQTT disabled: no broker configured")
		return nil, nil
	}
	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "geoconflate"
	}
	co.SetClientID(clientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetKeepAlive(60 * time.Second)
	co.SetPingTimeout(10 * time.Second)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		zap.L().Warn("MQTT connection lost", zap.Error(err))
	})

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, eris.Errorf("mqtt: connect to %s timed out after %v", opts.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, eris.Wrapf(err, "mqtt: connect to %s", opts.Broker)
	}
	zap.L().Info("connected to MQTT broker", zap.String("broker", opts.Broker))
	return client, nil
}

// MatchMessage is the published form of one match
type MatchMessage struct {
	Source     int     `json:"source"`
	Target     int     `json:"target"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// RunMessage is the published run summary
type RunMessage struct {
	RunID     string  `json:"run_id"`
	Summary   Summary `json:"summary"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher publishes run results under <prefix>/runs/<id>/...
type Publisher struct {
	client  mqtt.Client
	prefix  string
	qos     byte
	retain  bool
	limiter *rate.Limiter
	timeout time.Duration
}

// NewPublisher creates a publisher limited to perSecond messages with the
// given burst. A non-positive rate disables limiting.
func NewPublisher(client mqtt.Client, prefix string, perSecond float64, burst int) *Publisher {
	if prefix == "" {
		prefix = "geoconflate"
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		qos:     1,
		retain:  true,
		limiter: rate.NewLimiter(limit, burst),
		timeout: 2 * time.Second,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishRun publishes the summary, then one list per status
func (p *Publisher) PublishRun(ctx context.Context, runID string, summary Summary, report *validate.Report) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}
	base := fmt.Sprintf("%s/runs/%s", p.prefix, runID)
	msg := RunMessage{RunID: runID, Summary: summary, Timestamp: time.Now().Unix()}
	if err := p.publish(ctx, base+"/summary", msg); err != nil {
		return err
	}
	for _, st := range []validate.Status{validate.Valid, validate.Invalid, validate.New} {
		matches := []MatchMessage{}
		for _, o := range report.Filter(st) {
			matches = append(matches, MatchMessage{
				Source:     o.Match.SourceID(),
				Target:     o.Match.TargetID(),
				Score:      o.Match.Score,
				Confidence: o.Record.Confidence,
			})
		}
		if err := p.publish(ctx, base+"/"+st.String(), matches); err != nil {
			return err
		}
	}
	zap.L().Info("published run", zap.String("run", runID), zap.String("topic", base))
	return nil
}

func (p *Publisher) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "mqtt: marshal %s", topic)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(err, "mqtt: rate limit %s", topic)
	}
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(p.timeout) && token.Error() != nil {
		return eris.Wrapf(token.Error(), "mqtt: publish to %s", topic)
	}
	zap.L().Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}
