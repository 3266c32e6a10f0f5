package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/nugget/kioskbridge/internal/buildinfo"
	"github.com/nugget/kioskbridge/internal/config"
	"github.com/nugget/kioskbridge/internal/hardware"
)

// errSetupAborted is returned when setup input ends before every
// question was answered.
var errSetupAborted = errors.New("setup aborted: unexpected end of input")

// setupEnv is what setup needs from the host. Tests replace it.
type setupEnv struct {
	// Path is the config file to write.
	Path string
	// MachineID seals the password; empty stores it in plain text.
	MachineID string
}

func hostSetupEnv() (setupEnv, error) {
	path, err := config.UserConfigPath()
	if err != nil {
		return setupEnv{}, err
	}
	probe := hardware.NewProbe(hardware.ProbeConfig{})
	id, _ := probe.MachineID()
	return setupEnv{Path: path, MachineID: id}, nil
}

func runSetup(stdin io.Reader, stdout io.Writer, flags *config.Flags) error {
	env, err := hostSetupEnv()
	if err != nil {
		return err
	}
	if flags.ConfigPath != "" {
		env.Path = flags.ConfigPath
	}
	return setup(stdin, stdout, env)
}

// setup asks for every configuration field, offering the current value
// (from an existing file, or the default) when the answer is empty.
func setup(stdin io.Reader, stdout io.Writer, env setupEnv) error {
	cfg := config.Default()
	if existing, err := config.Load(env.Path); err == nil {
		cfg = existing
	}
	if config.IsSealed(cfg.MQTT.Password) {
		if plain, err := config.Unseal(cfg.MQTT.Password, env.MachineID, buildinfo.AppName); err == nil {
			cfg.MQTT.Password = plain
		} else {
			cfg.MQTT.Password = ""
		}
	}

	p := &prompter{in: bufio.NewReader(stdin), out: stdout, raw: stdin}

	zoom := strconv.FormatFloat(cfg.Web.Zoom, 'f', -1, 64)
	for _, q := range []struct {
		label string
		value *string
	}{
		{"Web URL", &cfg.Web.URL},
		{"Web theme (dark, light)", &cfg.Web.Theme},
		{"Web zoom", &zoom},
		{"MQTT broker URL (empty disables integration)", &cfg.MQTT.URL},
		{"MQTT user", &cfg.MQTT.User},
	} {
		if err := p.ask(q.label, q.value); err != nil {
			return err
		}
	}
	z, err := strconv.ParseFloat(zoom, 64)
	if err != nil {
		return fmt.Errorf("invalid web zoom %q: %w", zoom, err)
	}
	cfg.Web.Zoom = z

	if err := p.askSecret("MQTT password", &cfg.MQTT.Password); err != nil {
		return err
	}
	if err := p.ask("MQTT discovery prefix", &cfg.MQTT.DiscoveryPrefix); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.MQTT.Password != "" {
		if env.MachineID == "" {
			fmt.Fprintln(stdout, "warning: no machine id, password stored unsealed")
		} else {
			sealed, err := config.Seal(cfg.MQTT.Password, env.MachineID, buildinfo.AppName)
			if err != nil {
				return fmt.Errorf("seal mqtt password: %w", err)
			}
			cfg.MQTT.Password = sealed
		}
	}

	if err := config.Save(env.Path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration written to %s\n", env.Path)
	return nil
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
	raw io.Reader
}

func (p *prompter) ask(label string, value *string) error {
	if *value != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, *value)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return errSetupAborted
	}
	if answer := strings.TrimSpace(line); answer != "" {
		*value = answer
	}
	return nil
}

// askSecret reads without echo when stdin is a terminal. "-" clears
// the stored value.
func (p *prompter) askSecret(label string, value *string) error {
	hint := ""
	if *value != "" {
		hint = " [unchanged]"
	}
	fmt.Fprintf(p.out, "%s%s: ", label, hint)

	var answer string
	if f, ok := p.raw.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		answer = string(b)
	} else {
		line, err := p.in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return errSetupAborted
		}
		answer = line
	}

	switch answer = strings.TrimSpace(answer); answer {
	case "":
	case "-":
		*value = ""
	default:
		*value = answer
	}
	return nil
}
