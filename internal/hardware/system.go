package hardware

import (
	"context"
	"fmt"
	"strings"
)

// Shutdown powers the host off through sudo. It does not wait for the
// command to complete.
func (p *Probe) Shutdown(ctx context.Context) <-chan Result {
	p.logger.Info("shutting down system")
	return p.privileged(ctx, Command{Name: "shutdown", Args: []string{"-h", "now"}})
}

// Reboot restarts the host through sudo. It does not wait for the
// command to complete.
func (p *Probe) Reboot(ctx context.Context) <-chan Result {
	p.logger.Info("rebooting system")
	return p.privileged(ctx, Command{Name: "reboot"})
}

func (p *Probe) privileged(ctx context.Context, cmd Command) <-chan Result {
	if !p.caps.Has(CapElevation) {
		return resultOf(Result{Err: fmt.Errorf("%s: sudo %w", cmd.Name, ErrUnsupported)})
	}
	return p.runner.Start(ctx, cmd.Elevated())
}

// PackageUpgrades lists the packages apt reports as upgradable. This
// runs `apt list --upgradable`, which is slow; callers keep it on the
// hourly cadence.
func (p *Probe) PackageUpgrades(ctx context.Context) ([]string, bool) {
	if !p.caps.Has(CapPackageUpgrades) {
		return nil, p.unsupported("package_upgrades")
	}
	res := p.runner.Run(ctx, Command{Name: "apt", Args: []string{"list", "--upgradable"}})
	if res.Err != nil {
		p.failed("package_upgrades", res.Err)
		return nil, false
	}
	return parseUpgradable(res.Output), true
}

// parseUpgradable extracts package names from apt list output lines of
// the form "name/suite version arch [upgradable from: x]".
func parseUpgradable(output string) []string {
	packages := []string{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Listing") || strings.HasPrefix(line, "WARNING") {
			continue
		}
		name, _, ok := strings.Cut(line, "/")
		if !ok || name == "" {
			continue
		}
		packages = append(packages, name)
	}
	return packages
}
