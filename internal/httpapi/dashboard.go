package httpapi

import (
	"html/template"
	"net/http"
	"time"

	logx "kudobot/pkg/logx"
)

var dashboardTmpl = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"fmtTime": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.Format("2006-01-02 15:04:05 MST")
	},
}).Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>kudobot</title>
<style>
body { font-family: monospace; margin: 2em; background: #111; color: #ddd; }
table { border-collapse: collapse; }
td { padding: 0.3em 1em 0.3em 0; }
td:first-child { color: #888; }
h1 { font-size: 1.2em; }
</style>
</head>
<body>
<h1>kudobot</h1>
<table>
<tr><td>total kudos sent</td><td>{{.TotalSent}}</td></tr>
<tr><td>active days</td><td>{{.ActiveDays}}</td></tr>
<tr><td>avg per active day</td><td>{{printf "%.1f" .AvgPerDay}}</td></tr>
<tr><td>queue size</td><td>{{.QueueSize}}</td></tr>
<tr><td>batch opened</td><td>{{fmtTime .BatchOpenedAt}}</td></tr>
<tr><td>last flush</td><td>{{fmtTime .LastFlushAt}}</td></tr>
<tr><td>last poll</td><td>{{fmtTime .LastPollAt}}</td></tr>
<tr><td>next poll</td><td>{{fmtTime .NextPollAt}}</td></tr>
</table>
</body>
</html>
`))

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := s.eng.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, st); err != nil {
		s.log.Error("dashboard render failed", logx.Err(err))
	}
}
