package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"stress-detect-go/config"
	"stress-detect-go/internal/core/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var ( // Use vars for functions to allow mocking in tests
	NewClientFunc = mqtt.NewClient
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	publishTimeout = 5 * time.Second
	ingestTimeout  = 30 * time.Second
)

// IngestFunc analysiert eine über MQTT eingelieferte Aufnahme. Die Funktion verteilt das
// Ergebnis selbst (im Server über services.ResultService, der auch diesen Client bedient).
type IngestFunc func(ctx context.Context, subject string, data []byte) (*models.DetectionResult, error)

// ResultMessage ist die Nutzlast auf <prefix>/results/<subject>
type ResultMessage struct {
	ID               string              `json:"id,omitempty"`
	SubjectID        string              `json:"subject_id"`
	Success          bool                `json:"success"`
	FacesDetected    int                 `json:"faces_detected"`
	StressScore      float64             `json:"stress_score"`
	StressLevel      models.Category     `json:"stress_level,omitempty"`
	Synthetic        bool                `json:"synthetic"`
	Faces            []models.FaceResult `json:"faces"`
	ProcessingTimeMs float64             `json:"processing_time_ms"`
	Error            string              `json:"error,omitempty"`
	ErrorCode        string              `json:"error_code,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

// AlertMessage ist die Nutzlast auf <prefix>/alerts
type AlertMessage struct {
	ID          string          `json:"id,omitempty"`
	SubjectID   string          `json:"subject_id"`
	StressScore float64         `json:"stress_score"`
	StressLevel models.Category `json:"stress_level"`
	Threshold   float64         `json:"threshold"`
	Synthetic   bool            `json:"synthetic"`
	Timestamp   time.Time       `json:"timestamp"`
}

// IngestMessage ist die erwartete Nutzlast auf <prefix>/ingest
type IngestMessage struct {
	SubjectID string `json:"subject_id"`
	ImageData string `json:"image_data"`
}

// Client wraps the MQTT client and its configuration.
type Client struct {
	Cfg             config.MQTTConfig
	Client          mqtt.Client
	severeThreshold float64
	ingest          IngestFunc
	connected       atomic.Bool
}

// IsActuallyConnected checks the status of the underlying Paho client.
func (c *Client) IsActuallyConnected() bool {
	return c.Client != nil && c.Client.IsConnected()
}

// IsConnected liefert den zuletzt gemeldeten Verbindungsstatus
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// NewMQTTClient creates and configures a new MQTT client wrapper.
// ingest may be nil; the ingest topic is only subscribed when configured and ingest is set.
func NewMQTTClient(cfg config.MQTTConfig, severeThreshold float64, ingest IngestFunc) (*Client, error) {
	if !cfg.Enabled {
		log.Info("MQTT client is disabled in the configuration.")
		return nil, nil
	}
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is not configured")
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "stress-detect"
	}

	c := &Client{
		Cfg:             cfg,
		severeThreshold: severeThreshold,
		ingest:          ingest,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL())
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	c.Client = NewClientFunc(opts)
	return c, nil
}

func (c *Client) brokerURL() string {
	if strings.Contains(c.Cfg.Broker, "://") {
		return c.Cfg.Broker
	}
	return fmt.Sprintf("tcp://%s:%d", c.Cfg.Broker, c.Cfg.Port)
}

// ResultsTopic liefert das Topic für Ergebnisse eines Subjekts
func (c *Client) ResultsTopic(subject string) string {
	return c.Cfg.TopicPrefix + "/results/" + topicSegment(subject)
}

// AlertsTopic liefert das Topic für Alarme
func (c *Client) AlertsTopic() string {
	return c.Cfg.TopicPrefix + "/alerts"
}

// IngestTopic liefert das Topic für eingelieferte Bilder
func (c *Client) IngestTopic() string {
	return c.Cfg.TopicPrefix + "/ingest"
}

// Start connects to the MQTT broker.
func (c *Client) Start() error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("MQTT client not initialized (likely disabled)")
	}
	log.Infof("Attempting to connect to MQTT broker: %s", c.brokerURL())
	if token := c.Client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker %s: %v", c.brokerURL(), token.Error())
		return token.Error()
	}
	return nil
}

// Stop disconnects the MQTT client.
func (c *Client) Stop() {
	if c == nil {
		return
	}
	if c.Client != nil && c.Client.IsConnected() {
		log.Info("Disconnecting MQTT client...")
		c.Client.Disconnect(250)
		log.Info("MQTT client disconnected.")
	}
	c.connected.Store(false)
}

// PublishResult veröffentlicht eine Ergebniszusammenfassung und bei Bedarf einen Alarm.
// Das annotierte Bild wird nicht übertragen.
func (c *Client) PublishResult(subject, recordID string, res *models.DetectionResult) error {
	if c == nil || c.Client == nil || res == nil {
		return nil
	}
	now := time.Now().UTC()

	msg := ResultMessage{
		ID:               recordID,
		SubjectID:        subject,
		Success:          res.Success,
		FacesDetected:    res.FacesDetected,
		Synthetic:        res.Synthetic,
		Faces:            res.Faces,
		ProcessingTimeMs: res.ProcessingTimeMs,
		Error:            res.Error,
		ErrorCode:        res.ErrorCode,
		Timestamp:        now,
	}
	dominant, ok := res.Dominant()
	if ok {
		msg.StressScore = dominant.Score
		msg.StressLevel = dominant.Category
	}
	if err := c.publish(c.ResultsTopic(subject), msg); err != nil {
		return err
	}

	if !ok || !res.Success || dominant.Score < c.severeThreshold {
		return nil
	}
	alert := AlertMessage{
		ID:          recordID,
		SubjectID:   subject,
		StressScore: dominant.Score,
		StressLevel: dominant.Category,
		Threshold:   c.severeThreshold,
		Synthetic:   res.Synthetic,
		Timestamp:   now,
	}
	log.WithFields(log.Fields{"subject": subject, "score": dominant.Score}).Warn("Severe stress level detected, publishing alert")
	return c.publish(c.AlertsTopic(), alert)
}

func (c *Client) publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}
	token := c.Client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}
	log.Debugf("Published %d bytes to MQTT topic %s", len(payload), topic)
	return nil
}

// connectionLostHandler logs when the connection is lost.
func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v. Attempting to reconnect...", err)
	c.connected.Store(false)
}

// onConnectHandler subscribes to the ingest topic when connected.
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Successfully connected to MQTT broker: %s", c.brokerURL())
	c.connected.Store(true)

	if !c.Cfg.Ingest || c.ingest == nil {
		return
	}
	topic := c.IngestTopic()
	log.Infof("Subscribing to MQTT topic: %s", topic)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
	} else {
		log.Infof("Successfully subscribed to MQTT topic: %s", topic)
	}
}

// messageHandler is called when a new message arrives on the ingest topic.
func (c *Client) messageHandler(client mqtt.Client, msg mqtt.Message) {
	log.Debugf("Received MQTT message on topic '%s'", msg.Topic())

	var in IngestMessage
	if err := json.Unmarshal(msg.Payload(), &in); err != nil {
		log.Warnf("Ignoring malformed ingest message on %s: %v", msg.Topic(), err)
		return
	}
	if in.ImageData == "" {
		log.Warnf("Ignoring ingest message without image_data on %s", msg.Topic())
		return
	}
	// nicht im Paho-Callback blockieren
	go c.handleIngest(in)
}

func (c *Client) handleIngest(in IngestMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), ingestTimeout)
	defer cancel()

	res, err := c.ingest(ctx, in.SubjectID, []byte(in.ImageData))
	if err != nil && res == nil {
		log.Errorf("MQTT ingest for subject %q failed: %v", in.SubjectID, err)
		return
	}
	log.WithFields(log.Fields{"subject": in.SubjectID, "success": res != nil && res.Success}).
		Debug("MQTT ingest analysed")
}

// topicSegment entfernt Wildcards und Trenner aus einer Subjekt-ID
func topicSegment(subject string) string {
	if subject == "" {
		return "anonymous"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, subject)
}
