package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"runtime/pprof"
	"time"

	"github.com/jamiealquiza/tachymeter"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/delaneyj/pods/pkg/hoststore"
	"github.com/delaneyj/pods/pods"
)

const (
	itersKey   = "iters"
	profileKey = "profile"
	htmlKey    = "html"
)

var (
	ww = []int{1, 10, 100}
	hh = []int{1, 10, 100}
)

func main() {
	cmd := &cli.Command{
		Name:  "benchmark",
		Usage: "Measure how long one action takes to settle across tracked states",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:  itersKey,
				Usage: "Actions to time per configuration",
				Value: 100,
			},
			&cli.BoolFlag{
				Name:  profileKey,
				Usage: "Write a CPU profile to default.pgo",
			},
			&cli.StringFlag{
				Name:  htmlKey,
				Usage: "Also write the results as an HTML report to this file",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

type result struct {
	name string
	calc *tachymeter.Metrics
}

func run(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool(profileKey) {
		f, err := os.Create("default.pgo")
		if err != nil {
			return err
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return err
		}
		defer pprof.StopCPUProfile()
	}

	iters := int(cmd.Uint(itersKey))
	log.Printf("warming up")
	benchmarkPropagate(iters)

	results := benchmarkPropagate(iters)

	tbl := table.NewWriter()
	tbl.SetTitle("pods propagation")
	tbl.SetOutputMirror(os.Stdout)
	tbl.AppendHeader(table.Row{"benchmark", "avg", "min", "p75", "p99", "max"})
	for _, r := range results {
		tbl.AppendRow(table.Row{
			r.name,
			r.calc.Time.Avg,
			r.calc.Time.Min,
			r.calc.Time.P75,
			r.calc.Time.P99,
			r.calc.Time.Max,
		})
	}
	tbl.Render()

	if path := cmd.String(htmlKey); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		writeReport(f, results)
		log.Printf("wrote %s", path)
	}
	return nil
}

// benchmarkPropagate times one action on a source state that w sink states
// track concurrently. Every sink carries a chain of h computes and is
// mounted on a host store, so each action walks the whole settle path.
func benchmarkPropagate(iters int) []result {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	var results []result
	for _, w := range ww {
		for _, h := range hh {
			e := pods.NewEngine(
				pods.WithLogger(quiet),
				pods.WithErrorHandler(func(err error) {
					log.Panic(err)
				}),
			)
			src := mustState(e, map[string]any{"n": 0}, nil)

			reducers := map[string]pods.Reducer{"src": src.Reducer()}
			sinks := make([]pods.Trackable, 0, w)
			for i := 0; i < w; i++ {
				sink := mustState(e, map[string]any{"n": 0}, chain(h))
				follow(src, sink)
				sinks = append(sinks, sink)
				reducers[fmt.Sprintf("sink%d", i)] = sink.Reducer()
			}
			if _, err := pods.Observe(sinks, func([]pods.Change) error { return nil }); err != nil {
				log.Panic(err)
			}
			if _, err := e.Register(hoststore.New(hoststore.Combine(reducers))); err != nil {
				log.Panic(err)
			}

			inc := pods.BindAction0(src, func(d *pods.Proxy) error {
				return d.Set("n", pods.Get[int](d, "n")+1)
			})

			tach := tachymeter.New(&tachymeter.Config{Size: iters})
			for i := 0; i < iters; i++ {
				start := time.Now()
				if err := inc(); err != nil {
					log.Panic(err)
				}
				tach.AddTime(time.Since(start))
			}

			results = append(results, result{
				name: fmt.Sprintf("propagate: %d * %d", w, h),
				calc: tach.Calc(),
			})
		}
	}
	return results
}

func mustState(e *pods.Engine, init any, opts []pods.StateOption) *pods.State {
	s, err := pods.NewState(e, init, opts...)
	if err != nil {
		log.Panic(err)
	}
	return s
}

// chain declares h computes c0..c(h-1), each one more than the last.
func chain(h int) []pods.StateOption {
	opts := make([]pods.StateOption, 0, h)
	prev := "n"
	for i := 0; i < h; i++ {
		from := prev
		opts = append(opts, pods.WithCompute(fmt.Sprintf("c%d", i), func(p *pods.Proxy, _ pods.Yield) any {
			return pods.Get[int](p, from) + 1
		}))
		prev = fmt.Sprintf("c%d", i)
	}
	return opts
}

func follow(src, sink *pods.State) {
	_, err := pods.Track([]pods.Trackable{src}, func(changes []pods.Change) error {
		n := changes[0].Current.(map[string]any)["n"].(int)
		return sink.Draft().Set("n", n)
	})
	if err != nil {
		log.Panic(err)
	}
}
