package main

import (
	"io"
	"time"

	"github.com/valyala/quicktemplate"
)

func writeReport(w io.Writer, results []result) {
	qw := quicktemplate.AcquireWriter(w)
	defer quicktemplate.ReleaseWriter(qw)
	streamReport(qw, results)
}

func streamReport(qw *quicktemplate.Writer, results []result) {
	n, e := qw.N(), qw.E()
	n.S(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>pods propagation</title></head>
<body>
<table>
<tr><th>benchmark</th><th>avg</th><th>min</th><th>p75</th><th>p99</th><th>max</th></tr>
`)
	for _, r := range results {
		n.S(`<tr><td>`)
		e.S(r.name)
		n.S(`</td>`)
		for _, d := range []time.Duration{
			r.calc.Time.Avg,
			r.calc.Time.Min,
			r.calc.Time.P75,
			r.calc.Time.P99,
			r.calc.Time.Max,
		} {
			n.S(`<td>`)
			e.S(d.String())
			n.S(`</td>`)
		}
		n.S("</tr>\n")
	}
	n.S(`</table>
</body>
</html>
`)
}
