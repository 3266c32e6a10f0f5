// Package hardware probes and controls the kiosk host: identity files
// (device tree with a DMI fallback), system metrics, display power and
// backlight brightness, the on-screen keyboard and pending package
// upgrades.
//
// Every getter returns a typed value plus an ok flag. Underlying file,
// command or D-Bus failures never escape a getter: they are logged and
// surface as ok == false, which callers treat as "withhold this value
// until the next sample". Side-effecting operations (power toggles,
// brightness writes, shutdown, reboot) are fire-and-forget and report
// completion through a channel carrying exactly one [Result].
//
// Which facilities exist on a host is decided once at startup by
// [Resolver.Resolve]; the resulting [Capabilities] gate every probe.
package hardware
