package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/nugget/kioskbridge/internal/config"
	"github.com/nugget/kioskbridge/internal/events"
	"github.com/nugget/kioskbridge/internal/hardware"
	"github.com/nugget/kioskbridge/internal/identity"
	"github.com/nugget/kioskbridge/internal/poller"
	"github.com/nugget/kioskbridge/internal/window"
)

// Hardware is the host probe surface the publisher reads and drives.
type Hardware interface {
	poller.Source
	SetDisplayStatus(ctx context.Context, power hardware.Power) <-chan hardware.Result
	SetBrightness(ctx context.Context, percent int) <-chan hardware.Result
	SetKeyboardVisible(ctx context.Context, visible bool) <-chan hardware.Result
	Shutdown(ctx context.Context) <-chan hardware.Result
	Reboot(ctx context.Context) <-chan hardware.Result
	PackageUpgrades(ctx context.Context) ([]string, bool)
}

// Intervals are the publisher's timer cadences.
type Intervals struct {
	// Poll drives the change detector.
	Poll time.Duration
	// Fast publishes heartbeat and last-active.
	Fast time.Duration
	// Metrics publishes system metrics and the window mode.
	Metrics time.Duration
	// Upgrades re-runs the package upgrade query.
	Upgrades time.Duration
}

// DefaultIntervals are the production cadences.
var DefaultIntervals = Intervals{
	Poll:     poller.Interval,
	Fast:     30 * time.Second,
	Metrics:  60 * time.Second,
	Upgrades: time.Hour,
}

const (
	publishTimeout = 10 * time.Second
	connectTimeout = 30 * time.Second
	inboxSize      = 256

	// heartbeatLayout is local time without zone or fraction.
	heartbeatLayout = "2006-01-02T15:04:05"
)

// Config wires a [Publisher]. Hardware, Poller, Window and Bus are
// shared with the rest of the process; the publisher only drives them
// from its own loop.
type Config struct {
	MQTT     config.MQTTConfig
	Identity identity.Identity
	Hardware Hardware
	Poller   *poller.Poller
	Bus      *events.Bus
	Window   window.Controller

	// Dial opens the broker connection. Defaults to [DialPaho].
	Dial      Dialer
	Intervals Intervals
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Publisher is the Home Assistant discovery bridge. All of its state is
// owned by the goroutine running [Publisher.Run]; client callbacks are
// queued onto that loop.
type Publisher struct {
	cfg      Config
	broker   *url.URL
	hw       Hardware
	snapshot *hardware.Snapshot
	logger   *slog.Logger

	topics   Topics
	entities []Entity
	router   *Router
	limiter  *messageRateLimiter

	inbox  chan func(context.Context)
	client Client
	runCtx context.Context

	state      ConnState
	terminated bool

	// keyboardDropped records that showing the keyboard took the
	// window out of Fullscreen, so hiding it may restore Fullscreen.
	keyboardDropped bool

	// upgrades is the last package upgrade sample; nil until sampled.
	upgrades []string
}

// New validates cfg and builds the entity set. It does not connect.
func New(cfg Config) (*Publisher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dial == nil {
		cfg.Dial = DialPaho
	}
	if cfg.Intervals == (Intervals{}) {
		cfg.Intervals = DefaultIntervals
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MQTT.DiscoveryPrefix == "" {
		cfg.MQTT.DiscoveryPrefix = config.DefaultDiscoveryPrefix
	}
	broker, err := url.Parse(cfg.MQTT.URL)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	topics := Topics{Prefix: cfg.MQTT.DiscoveryPrefix, Node: cfg.Identity.NodeID}
	entities := Entities(cfg.Hardware.Capabilities(), cfg.Identity, topics)

	return &Publisher{
		cfg:      cfg,
		broker:   broker,
		hw:       cfg.Hardware,
		snapshot: cfg.Poller.Snapshot(),
		logger:   cfg.Logger,
		topics:   topics,
		entities: entities,
		router:   NewRouter(entities, topics),
		limiter:  newMessageRateLimiter(commandRateLimit, commandRateInterval, cfg.Logger),
		inbox:    make(chan func(context.Context), inboxSize),
		runCtx:   context.Background(),
	}, nil
}

// Entities returns the registered entities.
func (p *Publisher) Entities() []Entity {
	return p.entities
}

// State returns the connection state. Only meaningful on the loop.
func (p *Publisher) State() ConnState {
	return p.state
}

// Run connects to the broker and runs the event loop until ctx is
// cancelled. Connection failures are retried in the background. Call
// [Publisher.Stop] after Run returns to close the connection.
func (p *Publisher) Run(ctx context.Context) error {
	p.runCtx = ctx
	p.setState(StateConnecting)
	p.logger.Info("mqtt connecting",
		"target", p.cfg.MQTT.User+":"+p.cfg.MQTT.MaskedPassword()+"@"+p.broker.Redacted(),
		"node", p.topics.Node,
		"entities", len(p.entities),
	)

	// The connection outlives ctx so Stop can still publish "offline".
	client, err := p.cfg.Dial(context.WithoutCancel(ctx), DialOptions{
		URL:       p.broker,
		User:      p.cfg.MQTT.User,
		Password:  p.cfg.MQTT.Password,
		ClientID:  ClientID(p.topics.Node),
		WillTopic: p.topics.Availability(),
	}, p.hooks())
	if err != nil {
		p.setState(StateOffline)
		return err
	}
	p.client = client

	go p.limiter.start(ctx)

	defer p.subscribeChanges()()

	p.loop(ctx)
	return nil
}

// subscribeChanges publishes display and keyboard state whenever the
// poller reports a change. The returned function unsubscribes.
func (p *Publisher) subscribeChanges() func() {
	unsubDisplay := p.cfg.Bus.Subscribe(events.DisplayChanged, func(events.Event) { p.publishDisplay(p.runCtx) })
	unsubKeyboard := p.cfg.Bus.Subscribe(events.KeyboardChanged, func(events.Event) { p.publishKeyboard(p.runCtx) })
	return func() {
		unsubDisplay()
		unsubKeyboard()
	}
}

// hooks queue client events onto the loop. They never block: a full
// inbox drops the event.
func (p *Publisher) hooks() Hooks {
	return Hooks{
		OnConnect: func() {
			p.enqueue("connect", p.onConnect)
		},
		OnConnectError: func(err error) {
			p.enqueue("connect_error", func(context.Context) { p.onConnectError(err) })
		},
		OnConnectionLost: func(err error) {
			p.enqueue("connection_lost", func(context.Context) { p.onConnectionLost(err) })
		},
		OnMessage: func(topic string, payload []byte) {
			logInbound(p.logger, topic, payload)
			if !p.limiter.allow() {
				return
			}
			payload = append([]byte(nil), payload...)
			p.enqueue("message", func(ctx context.Context) { p.handleMessage(ctx, topic, payload) })
		},
	}
}

func (p *Publisher) enqueue(kind string, fn func(context.Context)) {
	select {
	case p.inbox <- fn:
	default:
		p.logger.Warn("mqtt event dropped, loop busy", "event", kind)
	}
}

func (p *Publisher) loop(ctx context.Context) {
	iv := p.cfg.Intervals
	poll := time.NewTicker(iv.Poll)
	fast := time.NewTicker(iv.Fast)
	metrics := time.NewTicker(iv.Metrics)
	upgrades := time.NewTicker(iv.Upgrades)
	defer poll.Stop()
	defer fast.Stop()
	defer metrics.Stop()
	defer upgrades.Stop()

	// Prime the snapshot before the first connect.
	p.cfg.Poller.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-p.inbox:
			fn(ctx)
		case <-poll.C:
			p.cfg.Poller.Tick(ctx)
		case <-fast.C:
			p.publishFast(ctx)
		case <-metrics.C:
			p.publishMetrics(ctx)
			p.publishKiosk(ctx)
		case <-upgrades.C:
			p.refreshUpgrades(ctx)
		}
	}
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires.
func (p *Publisher) AwaitConnection(ctx context.Context) error {
	if p.client == nil {
		return fmt.Errorf("mqtt publisher not started")
	}
	return p.client.AwaitConnection(ctx)
}

// Stop publishes "offline" to the availability topic and disconnects.
// After Terminated nothing is published; the disconnect is clean so the
// will is not sent either.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	if p.state == StateOnline && !p.terminated {
		p.publishAvailability(ctx, "offline")
	}
	p.setState(StateOffline)
	return p.client.Disconnect(ctx)
}

func (p *Publisher) setState(s ConnState) {
	if p.state != s {
		p.logger.Debug("mqtt state", "from", p.state, "to", s)
	}
	p.state = s
}

// --- Connection lifecycle ---

// onConnect registers every entity, subscribes to the command topics
// and publishes the full state. It runs on every (re-)connect; configs
// are identical each time so Home Assistant updates rather than
// duplicates its entities.
func (p *Publisher) onConnect(ctx context.Context) {
	p.setState(StateOnline)
	p.logger.Info("mqtt connected to broker", "broker", p.broker.Redacted())

	p.publishDiscovery(ctx)
	p.publishAvailability(ctx, "online")

	topics := p.router.Topics()
	sort.Strings(topics)
	subCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Subscribe(subCtx, topics); err != nil {
		p.logger.Warn("mqtt subscribe failed", "topics", len(topics), "error", err)
	} else {
		p.logger.Debug("mqtt subscribed", "topics", len(topics))
	}

	p.publishAll(ctx)
}

func (p *Publisher) onConnectError(err error) {
	p.setState(StateConnecting)
	p.logger.Warn("mqtt connection error", "error", err)
}

func (p *Publisher) onConnectionLost(err error) {
	if p.state == StateOnline {
		p.logger.Warn("mqtt connection lost", "error", err)
	}
	p.setState(StateOffline)
}

// --- Publishing ---

func (p *Publisher) publishDiscovery(ctx context.Context) {
	for _, e := range p.entities {
		topic := e.ConfigTopic(p.topics)
		payload, err := json.Marshal(e.Config)
		if err != nil {
			p.logger.Error("mqtt marshal discovery payload", "entity", e.Object, "error", err)
			continue
		}
		p.publish(ctx, topic, payload)
	}
	p.logger.Debug("mqtt discovery published", "entities", len(p.entities))
}

func (p *Publisher) publishAvailability(ctx context.Context, status string) {
	if err := p.send(ctx, p.topics.Availability(), []byte(status)); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
		return
	}
	p.logger.Info("mqtt availability published", "status", status)
}

// publishAll pushes the complete current state.
func (p *Publisher) publishAll(ctx context.Context) {
	p.publishStatic(ctx)
	p.publishMetrics(ctx)
	p.publishKiosk(ctx)
	p.publishDisplay(ctx)
	p.publishKeyboard(ctx)
	p.publishFast(ctx)
	if p.upgrades == nil {
		p.refreshUpgrades(ctx)
	} else {
		p.publishUpgrades(ctx)
	}
}

func (p *Publisher) publishStatic(ctx context.Context) {
	id := p.cfg.Identity
	p.publishString(ctx, p.sensorTopic(objModel), id.Model)
	p.publishString(ctx, p.sensorTopic(objSerialNumber), id.SerialNumber)
	p.publishString(ctx, p.sensorTopic(objHostName), id.HostName)
}

func (p *Publisher) publishMetrics(ctx context.Context) {
	m := p.cfg.Poller.RefreshMetrics()
	p.publishFloat(ctx, p.sensorTopic(objUpTime), m.UpTime)
	p.publishFloat(ctx, p.sensorTopic(objMemorySize), m.MemorySize)
	p.publishFloat(ctx, p.sensorTopic(objMemoryUsage), m.MemoryUsage)
	p.publishFloat(ctx, p.sensorTopic(objProcessorUsage), m.ProcessorUsage)
	p.publishFloat(ctx, p.sensorTopic(objProcessorTemperature), m.ProcessorTemperature)
}

func (p *Publisher) publishKiosk(ctx context.Context) {
	p.publishString(ctx, p.topics.Status(DomainSelect, objKiosk), string(p.cfg.Window.Mode()))
}

func (p *Publisher) publishDisplay(ctx context.Context) {
	if !p.hw.Capabilities().Has(hardware.CapDisplayStatus) {
		return
	}
	if s := p.snapshot.DisplayPower; s != nil {
		p.publishString(ctx, p.topics.Status(DomainLight, objDisplay), string(*s))
	}
	if b := p.snapshot.Brightness; b != nil {
		p.publishString(ctx, p.topics.BrightnessStatus(), strconv.Itoa(*b))
	}
}

func (p *Publisher) publishKeyboard(ctx context.Context) {
	if k := p.snapshot.Keyboard; k != nil {
		p.publishString(ctx, p.topics.Status(DomainSwitch, objKeyboard), string(*k))
	}
}

// publishFast publishes the heartbeat and the minutes since the last
// user input.
func (p *Publisher) publishFast(ctx context.Context) {
	now := p.cfg.Now()
	p.publishString(ctx, p.sensorTopic(objHeartbeat), now.Local().Format(heartbeatLayout))

	if last := p.cfg.Window.LastInput(ctx); !last.IsZero() {
		minutes := max(now.Sub(last).Minutes(), 0)
		p.publishFloat(ctx, p.sensorTopic(objLastActive), &minutes)
	}
}

func (p *Publisher) refreshUpgrades(ctx context.Context) {
	pkgs, ok := p.hw.PackageUpgrades(ctx)
	if !ok {
		return
	}
	p.upgrades = pkgs
	p.publishUpgrades(ctx)
}

type upgradeAttributes struct {
	Total    int      `json:"total"`
	Packages []string `json:"packages"`
}

func (p *Publisher) publishUpgrades(ctx context.Context) {
	if p.upgrades == nil {
		return
	}
	attrs, err := json.Marshal(upgradeAttributes{Total: len(p.upgrades), Packages: p.upgrades})
	if err != nil {
		p.logger.Error("mqtt marshal upgrade attributes", "error", err)
		return
	}
	p.publishString(ctx, p.sensorTopic(objPackageUpgrades), strconv.Itoa(len(p.upgrades)))
	p.publish(ctx, p.topics.Attributes(objPackageUpgrades), attrs)
}

func (p *Publisher) sensorTopic(object string) string {
	return p.topics.Status(DomainSensor, object)
}

func (p *Publisher) publishString(ctx context.Context, topic, value string) {
	p.publish(ctx, topic, []byte(value))
}

// publishFloat skips nil values; a failed probe is withheld, not
// published as empty.
func (p *Publisher) publishFloat(ctx context.Context, topic string, v *float64) {
	if v == nil {
		return
	}
	p.publishString(ctx, topic, strconv.FormatFloat(*v, 'f', -1, 64))
}

// publish sends a retained QoS 1 message. It is a no-op once the kiosk
// has been terminated and while the broker is not connected.
func (p *Publisher) publish(ctx context.Context, topic string, payload []byte) {
	if p.terminated {
		p.logger.Debug("mqtt publish suppressed after termination", "topic", topic)
		return
	}
	if p.state != StateOnline {
		p.logger.Log(ctx, config.LevelTrace, "mqtt offline, publish skipped", "topic", topic)
		return
	}
	if err := p.send(ctx, topic, payload); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		return
	}
	p.logger.Log(ctx, config.LevelTrace, "mqtt published", "topic", topic, "payload_size", len(payload))
}

// errOffline is returned by send while not connected.
var errOffline = errors.New("mqtt not connected")

func (p *Publisher) send(ctx context.Context, topic string, payload []byte) error {
	if p.state != StateOnline {
		return errOffline
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.client.Publish(pctx, Message{Topic: topic, Payload: payload, QoS: 1, Retain: true})
}
