package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/touch-sensor/internal/logic"
	"github.com/sweeney/touch-sensor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
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
	},
	"hex": func(a uint16) string { return fmt.Sprintf("0x%02X", a) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Touch Sensor</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.touched { color: green; font-weight: bold; }
.released { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Touch Sensor</h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><td>State</td><td>Count</td></tr>
{{range .Rows}}<tr><th>{{.Channel}}</th><td id="ch-{{.Channel}}" class="{{if .Touched}}touched{{else}}released{{end}}">{{if .Touched}}TOUCHED{{else}}released{{end}}</td><td>{{if $.Counting}}{{.Count}}{{else}}-{{end}}</td></tr>
{{end}}</table>

<h2>Dispatch</h2>
<table>
<tr><th>Mode</th><td>{{.Mode}}</td></tr>
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Cycles</th><td>{{.Counters.Cycles}}</td></tr>
<tr><th>New touches</th><td>{{.Counters.Edges}}</td></tr>
<tr><th>Device errors</th><td>{{.Counters.DeviceErrors}}</td></tr>
<tr><th>Handler errors</th><td>{{.Counters.HandlerErrors}}</td></tr>
{{if .LastTouch}}<tr><th>Last touch</th><td>channel {{.LastTouch.Channel}} at {{.LastTouch.Timestamp.UTC.Format "15:04:05.000Z"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Sensor</th><td>{{hex .Config.Address}}</td></tr>
<tr><th>Notify</th><td>{{if eq .Config.PollMs 0}}IRQ line {{.Config.Line}}{{else}}poll {{.Config.PollMs}}ms{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type channelRow struct {
	Channel logic.Channel
	Touched bool
	Count   int
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	counts := make(map[logic.Channel]int, len(snap.Counts))
	for _, cc := range snap.Counts {
		counts[cc.Channel] = cc.Count
	}
	rows := make([]channelRow, 0, len(snap.Channels))
	for _, c := range snap.Channels {
		rows = append(rows, channelRow{Channel: c, Touched: snap.Touched.Has(c), Count: counts[c]})
	}

	// Snapshot has Uptime() and Ready() methods but the template wants fields.
	data := struct {
		status.Snapshot
		Rows     []channelRow
		Counting bool
		Ready    bool
		Uptime   time.Duration
	}{
		Snapshot: snap,
		Rows:     rows,
		Counting: snap.Mode.Has(logic.ModeCount),
		Ready:    snap.Ready(),
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
