// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/Query-farm/predictor/predictor"
)

const landingHTMLTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s &mdash; predictor</title>
<style>
  body { font-family: system-ui, -apple-system, sans-serif; max-width: 640px;
         margin: 0 auto; padding: 60px 20px 0; color: #2c2c1e; background: #faf8f0; }
  h1 { color: #2d5016; margin-bottom: 8px; }
  code { font-family: monospace; background: #f0ece0; padding: 2px 6px;
         border-radius: 3px; font-size: 0.9em; }
  p, li { line-height: 1.7; color: #6b6b5a; }
  table { width: 100%%; border-collapse: collapse; font-size: 0.9em; }
  th { text-align: left; padding: 6px 10px; background: #f0ece0; }
  td { padding: 6px 10px; border-bottom: 1px solid #f0ece0; }
  footer { margin-top: 48px; padding: 20px 0; border-top: 1px solid #f0ece0;
           font-size: 0.85em; text-align: center; }
  a { color: #2d5016; }
</style>
</head>
<body>
<h1>%s</h1>
<p>Species <code>%s</code> &middot; sequence length <code>%d</code></p>
<ul>
<li><code>POST %s/predict</code></li>
<li><code>GET %s/help</code></li>
<li><code>GET /healthz</code>, <code>GET /readyz</code>%s</li>
</ul>
<table>
<tr><th>#</th><th>Cell type</th></tr>
%s</table>
<footer>
  &copy; 2026 <a href="https://query.farm">Query.Farm LLC</a>
</footer>
</body>
</html>`

func buildLandingHTML(s *predictor.Server, prefix string, metrics bool) []byte {
	var rows strings.Builder
	for i, name := range s.Categories() {
		fmt.Fprintf(&rows, "<tr><td>%d</td><td>%s</td></tr>\n", i, html.EscapeString(name))
	}
	var metricsLink string
	if metrics {
		metricsLink = `, <code>GET /metrics</code>`
	}
	escPrefix := html.EscapeString(prefix)
	return []byte(fmt.Sprintf(landingHTMLTemplate,
		html.EscapeString(s.ServiceName()),
		html.EscapeString(s.ServiceName()),
		html.EscapeString(s.Species()),
		s.RequiredLength(),
		escPrefix,
		escPrefix,
		metricsLink,
		rows.String(),
	))
}

func writeHTML(w http.ResponseWriter, status int, page []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(page)
}
