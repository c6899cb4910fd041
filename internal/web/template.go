package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/touch-scale/internal/status"
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
	"grams": func(v float64) string {
		return fmt.Sprintf("%.1f g", v)
	},
	"percent": func(p float64) string {
		return fmt.Sprintf("%.0f%%", p*100)
	},
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
<title>Touch Scale</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.result { color: green; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Touch Scale<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Session</h2>
<table>
<tr><th>State</th><td id="state" class="{{if eq (printf "%s" .Session.Phase) "RESULT"}}result{{end}}">{{stateOrUnknown (printf "%s" .Session.Phase)}}</td></tr>
<tr><th>Mode</th><td>{{.Session.Mode}}</td></tr>
<tr><th>Listening</th><td id="listening">{{if .Session.Listening}}yes{{else}}no{{end}}</td></tr>
<tr><th>Pressure</th><td id="pressure">{{grams .Session.Pressure}}</td></tr>
<tr><th>Finger hold</th><td id="dwell">{{percent .Session.DwellProgress}}</td></tr>
<tr><th>Settling</th><td id="stability">{{percent .Session.StabilityProgress}}</td></tr>
<tr><th>Weight</th><td id="weight">{{grams .Session.Weight}}</td></tr>
<tr><th>Scale</th><td id="scale">{{grams .Session.ScaleWeight}}{{if .Session.ZeroOffset}} (zero {{grams .Session.ZeroOffset}}){{end}}</td></tr>
</table>
<p>
<button onclick="post('/start')">Start</button>
<button onclick="post('/restart')">Restart</button>
<button onclick="post('/zero')">Zero</button>
</p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Sessions</h2>
<table>
<tr><th>Attempts</th><td>{{.Counts.Attempts}}</td></tr>
<tr><th>Results</th><td>{{.Counts.Results}}</td></tr>
<tr><th>Aborted</th><td>{{.Counts.Aborted}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Buttons</th><td>{{if .Config.Buttons}}poll {{.Config.PollMs}}ms, debounce {{.Config.DebounceMs}}ms{{else}}disabled{{end}}</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.Demo}}<tr><th>Source</th><td>demo</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function grams(v) { return v.toFixed(1) + " g"; }
  function percent(p) { return Math.round(p * 100) + "%"; }
  function text(id, v) { document.getElementById(id).textContent = v; }

  window.post = function(path) { fetch(path, { method: "POST" }); };

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() { setDot("ok", "live"); };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(m) {
      try {
        var s = JSON.parse(m.data).status.session;
        var el = document.getElementById("state");
        el.textContent = s.state;
        el.className = s.state === "RESULT" ? "result" : "";
        text("listening", s.listening ? "yes" : "no");
        text("pressure", grams(s.pressure));
        text("dwell", percent(s.dwell_progress));
        text("stability", percent(s.stability_progress));
        text("weight", grams(s.weight));
        text("scale", grams(s.scale.weight));
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render: %v", err)
	}
}
