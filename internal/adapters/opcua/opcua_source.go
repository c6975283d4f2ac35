// Package opcua is a tag source backed by an OPC UA subscription. Every
// configured tag is announced once as a tag definition when the source
// starts; data changes then arrive as tag values.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/ghalamif/AegisGate/internal/domain"
	"github.com/ghalamif/AegisGate/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Tags             []TagConfig   `yaml:"tags"`
}

// TagConfig binds an OPC UA node to the tag it feeds.
type TagConfig struct {
	NodeID      string `yaml:"node_id"`
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	ValueType   string `yaml:"value_type"`
	AccessLevel string `yaml:"access_level"`
	Mode        string `yaml:"mode"`
	Description string `yaml:"description"`
	Unit        string `yaml:"unit"`
	Device      string `yaml:"device"`
	Collection  string `yaml:"collection"`
}

func (t TagConfig) definition() domain.TagDefinition {
	return domain.TagDefinition{
		ID:           t.ID,
		Name:         t.Name,
		Address:      t.Address,
		ValueType:    t.ValueType,
		AccessLevel:  t.AccessLevel,
		Mode:         t.Mode,
		Description:  t.Description,
		Unit:         t.Unit,
		DeviceID:     t.Device,
		CollectionID: t.Collection,
	}
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "AegisGate"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
	for i := range c.Tags {
		t := &c.Tags[i]
		if t.ID == "" {
			t.ID = t.NodeID
		}
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Address == "" {
			t.Address = t.NodeID
		}
		if t.AccessLevel == "" {
			t.AccessLevel = "read"
		}
		if t.Mode == "" {
			t.Mode = "subscribe"
		}
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if len(c.Tags) == 0 {
		return errors.New("at least one tag must be configured")
	}
	seen := make(map[string]struct{}, len(c.Tags))
	for _, t := range c.Tags {
		if t.NodeID == "" {
			return fmt.Errorf("tag %q: node_id is required", t.ID)
		}
		if t.Device == "" || t.Collection == "" {
			return fmt.Errorf("tag %q: device and collection are required", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("duplicate tag id %q", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

type Source struct {
	cfg       Config
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]TagConfig
	obs       ports.Observability
	mu        sync.Mutex
	started   bool
}

func NewSource(cfg Config, obs ports.Observability) (*Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if obs == nil {
		return nil, errors.New("observability is required")
	}
	return &Source{cfg: cfg, obs: obs}, nil
}

func (s *Source) Start(out chan<- domain.Event) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("opcua source already started")
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())

	client, err := opcua.NewClient(s.cfg.Endpoint, s.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Tags)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: s.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	handleMap := make(map[uint32]TagConfig, len(s.cfg.Tags))
	for i, tag := range s.cfg.Tags {
		nodeID, err := ua.ParseNodeID(tag.NodeID)
		if err != nil {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("parse node id %q: %w", tag.NodeID, err)
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if s.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q: %w", tag.NodeID, err)
		}
		if len(res.Results) == 0 {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: empty result", tag.NodeID)
		}
		if res.Results[0].StatusCode != ua.StatusOK {
			s.cleanupOnError(ctx, cancel, sub, client)
			return fmt.Errorf("monitor node %q failed: %s", tag.NodeID, res.Results[0].StatusCode)
		}
		handleMap[handle] = tag
	}

	s.mu.Lock()
	s.client = client
	s.sub = sub
	s.cancel = cancel
	s.handleMap = handleMap
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx, notifyCh, out)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	sub := s.sub
	client := s.client
	s.started = false
	s.cancel = nil
	s.sub = nil
	s.client = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}

	s.wg.Wait()
	return err
}

func (s *Source) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, out chan<- domain.Event) {
	defer s.wg.Done()

	if !s.announce(ctx, out) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				s.obs.LogError("opcua_notification_error", notif.Error)
				continue
			}
			s.processNotification(ctx, notif.Value, out)
		}
	}
}

// announce emits one definition per configured tag, in configuration order.
func (s *Source) announce(ctx context.Context, out chan<- domain.Event) bool {
	for _, tag := range s.cfg.Tags {
		select {
		case <-ctx.Done():
			return false
		case out <- domain.DefinitionEvent(tag.definition()):
		}
	}
	return true
}

func (s *Source) processNotification(ctx context.Context, val interface{}, out chan<- domain.Event) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		tag, ok := s.handleMap[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		v, ok := variantValue(item.Value.Value)
		if !ok {
			s.obs.LogError("opcua_unsupported_value", fmt.Errorf("node %s: %s", tag.NodeID, variantType(item.Value.Value)),
				ports.Field{Key: "tag", Value: tag.ID})
			continue
		}

		select {
		case <-ctx.Done():
			return
		case out <- domain.ValueEvent(tag.ID, v):
		}
	}
}

func (s *Source) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}

	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (s *Source) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

// variantValue converts a variant into a JSON-friendly Go value. Numbers keep
// their width, timestamps become RFC 3339 strings. NaN and Inf have no JSON
// form and are reported as unsupported.
func variantValue(v *ua.Variant) (any, bool) {
	if v == nil {
		return nil, false
	}

	switch val := v.Value().(type) {
	case float32:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, false
		}
		return val, true
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, false
		}
		return val, true
	case bool, string,
		int8, uint8, int16, uint16, int32, uint32, int64, uint64:
		return val, true
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), true
	case []byte:
		return string(val), true
	case *ua.LocalizedText:
		if val == nil {
			return nil, false
		}
		return val.Text, true
	default:
		return nil, false
	}
}

func variantType(v *ua.Variant) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v.Value())
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.TagSource = (*Source)(nil)
