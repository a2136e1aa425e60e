package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	monitoringapp "esante-monitoring/internal/monitoring/application"
	"esante-monitoring/internal/observability/metrics"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
	handleTimeout     = 30 * time.Second
)

// ErrMalformed marks a message that cannot be turned into a measurement.
var ErrMalformed = errors.New("mqtt: malformed vitals message")

// Ingester accepts measurements.
type Ingester interface {
	Ingest(ctx context.Context, req monitoringapp.IngestRequest) (*monitoringapp.MeasurementResult, error)
}

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte
}

// VitalsMessage is the device payload published on esante/patient/{id}/vitals/{TYPE}.
type VitalsMessage struct {
	PatientID       string         `json:"patientId"`
	DeviceType      string         `json:"deviceType"`
	MeasurementType string         `json:"measurementType"`
	Value           *float64       `json:"value"`
	Value2          *float64       `json:"value2,omitempty"`
	Unit            string         `json:"unit"`
	Timestamp       string         `json:"timestamp"`
	Metadata        map[string]any `json:"metadata"`
}

// Consumer subscribes to device vitals topics and feeds the ingestion gateway.
type Consumer struct {
	client   paho.Client
	topic    string
	qos      byte
	ingester Ingester
	logger   *zap.Logger
	ctx      context.Context
}

// NewConsumer builds a consumer. It does not connect until Start.
func NewConsumer(opts Options, ingester Ingester, logger *zap.Logger) (*Consumer, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("mqtt: empty broker url")
	}
	if opts.Topic == "" {
		return nil, errors.New("mqtt: empty topic")
	}
	if ingester == nil {
		return nil, errors.New("mqtt: nil ingester")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Consumer{
		topic:    opts.Topic,
		qos:      opts.QoS,
		ingester: ingester,
		logger:   logger,
		ctx:      context.Background(),
	}

	clientOpts := paho.NewClientOptions()
	clientOpts.AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetCleanSession(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		// Resubscribe after every (re)connect since the session is clean.
		if err := c.subscribe(client); err != nil {
			c.logger.Error("mqtt subscribe failed", zap.String("topic", c.topic), zap.Error(err))
		}
	})
	clientOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("mqtt connection lost", zap.Error(err))
	})
	c.client = paho.NewClient(clientOpts)
	return c, nil
}

// Start connects to the broker. Messages are processed until ctx is done or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx = ctx
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect timed out after %s", connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	c.logger.Info("mqtt consumer connected", zap.String("topic", c.topic))
	return nil
}

// Stop disconnects from the broker.
func (c *Consumer) Stop() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(disconnectQuiesce)
	}
}

func (c *Consumer) subscribe(client paho.Client) error {
	token := client.Subscribe(c.topic, c.qos, c.onMessage)
	token.Wait()
	return token.Error()
}

func (c *Consumer) onMessage(_ paho.Client, msg paho.Message) {
	ctx, cancel := context.WithTimeout(c.ctx, handleTimeout)
	defer cancel()
	if err := c.handleMessage(ctx, msg.Topic(), msg.Payload()); err != nil {
		c.logger.Warn("mqtt message dropped", zap.String("topic", msg.Topic()), zap.Error(err))
	}
}

func (c *Consumer) handleMessage(ctx context.Context, topic string, payload []byte) error {
	req, err := decode(topic, payload)
	if err != nil {
		metrics.IncMQTTMessage(metrics.ResultRejected)
		return err
	}
	result, err := c.ingester.Ingest(ctx, req)
	if err != nil {
		metrics.IncMQTTMessage(metrics.ResultError)
		return err
	}
	metrics.IncMQTTMessage(metrics.ResultSuccess)
	if result.EventID != nil {
		c.logger.Info("device measurement raised event",
			zap.String("patient_id", result.PatientID),
			zap.String("event_id", *result.EventID),
			zap.String("severity", string(result.EventSeverity)),
		)
	}
	return nil
}

func decode(topic string, payload []byte) (monitoringapp.IngestRequest, error) {
	var msg VitalsMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return monitoringapp.IngestRequest{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	topicPatient, topicType := parseTopic(topic)
	patientID := strings.TrimSpace(msg.PatientID)
	if patientID == "" {
		patientID = topicPatient
	}
	measurementType := strings.TrimSpace(msg.MeasurementType)
	if measurementType == "" {
		measurementType = topicType
	}
	req := monitoringapp.IngestRequest{
		PatientID: patientID,
		Type:      measurementType,
		Value:     msg.Value,
		Value2:    msg.Value2,
		Unit:      msg.Unit,
	}
	if msg.Timestamp != "" {
		at, err := time.Parse(time.RFC3339, msg.Timestamp)
		if err != nil {
			return monitoringapp.IngestRequest{}, fmt.Errorf("%w: timestamp must be RFC3339", ErrMalformed)
		}
		req.MeasuredAt = &at
	}
	return req, nil
}

// parseTopic extracts the patient and type segments from esante/patient/{id}/vitals/{TYPE}.
func parseTopic(topic string) (patientID, measurementType string) {
	parts := strings.Split(topic, "/")
	for i := 0; i+1 < len(parts); i++ {
		switch parts[i] {
		case "patient":
			patientID = parts[i+1]
		case "vitals":
			measurementType = parts[i+1]
		}
	}
	return patientID, measurementType
}
