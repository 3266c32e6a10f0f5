package mqtt

import (
	"errors"
	"fmt"

	"github.com/nugget/kioskbridge/internal/hardware"
	"github.com/nugget/kioskbridge/internal/window"
)

// ErrUnknownCommand is returned for messages on topics no entity owns.
var ErrUnknownCommand = errors.New("unknown command")

// Command is an inbound command, validated at the topic boundary. The
// set of implementations is closed.
type Command interface {
	command()
}

// Action identifies a button.
type Action string

// Button actions.
const (
	ActionShutdown Action = objShutdown
	ActionReboot   Action = objReboot
	ActionRefresh  Action = objRefresh
)

// PressCommand triggers a button. Button payloads are ignored.
type PressCommand struct {
	Action Action
}

// KioskCommand selects a window mode.
type KioskCommand struct {
	Mode window.Mode
}

// DisplayPowerCommand turns the display on or off.
type DisplayPowerCommand struct {
	Power hardware.Power
}

// BrightnessCommand sets the display brightness in percent [1,100].
type BrightnessCommand struct {
	Percent int
}

// KeyboardCommand shows or hides the on-screen keyboard.
type KeyboardCommand struct {
	Visible bool
}

func (PressCommand) command()        {}
func (KioskCommand) command()        {}
func (DisplayPowerCommand) command() {}
func (BrightnessCommand) command()   {}
func (KeyboardCommand) command()     {}

type parseFunc func(payload string) (Command, error)

// Router maps command topics to payload parsers.
type Router struct {
	routes map[string]parseFunc
}

// NewRouter builds the command routes for the registered entities. A
// topic only routes if its entity was registered.
func NewRouter(entities []Entity, t Topics) *Router {
	r := &Router{routes: make(map[string]parseFunc)}
	for _, e := range entities {
		switch e.Domain {
		case DomainButton:
			action := Action(e.Object)
			r.routes[t.Execute(e.Object)] = func(string) (Command, error) {
				return PressCommand{Action: action}, nil
			}
		case DomainSelect:
			r.routes[e.Config.CommandTopic] = parseKiosk
		case DomainLight:
			r.routes[e.Config.CommandTopic] = parseDisplayPower
			if e.Config.BrightnessCommandTopic != "" {
				r.routes[e.Config.BrightnessCommandTopic] = parseBrightness
			}
		case DomainSwitch:
			r.routes[e.Config.CommandTopic] = parseKeyboard
		}
	}
	return r
}

// Topics returns every routed command topic.
func (r *Router) Topics() []string {
	out := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		out = append(out, topic)
	}
	return out
}

// Parse validates payload against the contract of topic.
func (r *Router) Parse(topic string, payload []byte) (Command, error) {
	parse, ok := r.routes[topic]
	if !ok {
		return nil, fmt.Errorf("%w: topic %s", ErrUnknownCommand, topic)
	}
	return parse(string(payload))
}

func parseKiosk(payload string) (Command, error) {
	mode, err := window.ParseMode(payload)
	if err != nil {
		return nil, err
	}
	return KioskCommand{Mode: mode}, nil
}

func parseDisplayPower(payload string) (Command, error) {
	power, err := hardware.ParsePower(payload)
	if err != nil {
		return nil, err
	}
	return DisplayPowerCommand{Power: power}, nil
}

func parseBrightness(payload string) (Command, error) {
	percent, err := hardware.ParseBrightness(payload)
	if err != nil {
		return nil, err
	}
	return BrightnessCommand{Percent: percent}, nil
}

func parseKeyboard(payload string) (Command, error) {
	power, err := hardware.ParsePower(payload)
	if err != nil {
		return nil, err
	}
	return KeyboardCommand{Visible: power == hardware.PowerOn}, nil
}
