package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/meal-sensor/internal/status"
)

// Uptime formats d as "1d 2h 3m 4s", dropping leading zero units.
func Uptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	}
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": Uptime,
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Meal Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.in_meal { color: green; font-weight: bold; }
.idle { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Meal Sensor</h1>

<h2>State</h2>
<table>
{{$meal := stateOrUnknown (printf "%s" .Loop.State)}}
<tr><th>Meal</th><td id="meal-state" class="{{if eq $meal "IN_MEAL"}}in_meal{{else if eq $meal "IDLE"}}idle{{else}}unknown{{end}}">{{$meal}}</td></tr>
<tr><th>Reading</th><td>{{.Loop.Reading}}</td></tr>
<tr><th>Haptic</th><td>{{if .Loop.WaveActive}}{{printf "%.0f" .Loop.Frequency}} Hz{{else}}idle{{end}} (next preset {{.Loop.PresetIndex}})</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Notifications</h2>
<table>
<tr><th>Collector</th><td>{{if .Config.Collector}}{{.Config.Collector}}{{else}}disabled{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Sent</th><td>{{.Notify.Sent}}</td></tr>
<tr><th>Failed</th><td>{{.Notify.Failed}}</td></tr>
<tr><th>Dropped</th><td>{{.Notify.Dropped}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Meal start</th><td>{{.Loop.Counts.MealStarted}}</td></tr>
<tr><th>Meal end</th><td>{{.Loop.Counts.MealEnded}}</td></tr>
<tr><th>Haptic bursts</th><td>{{.Loop.Stats.Triggers}}</td></tr>
<tr><th>Sensor errors</th><td>{{.Loop.Stats.SensorErrors}}</td></tr>
<tr><th>Actuator errors</th><td>{{.Loop.Stats.ActuatorErrors}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ticks</th><td>{{.Loop.Stats.Ticks}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickPeriod}}</td></tr>
<tr><th>Thresholds</th><td>{{.Config.LowThreshold}} / {{.Config.HighThreshold}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.Heartbeat 0}}disabled{{else}}{{.Config.Heartbeat}}{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has an Uptime() method but the template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
