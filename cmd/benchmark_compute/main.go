package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/delaneyj/pods/pods"
)

func main() {
	log.Print("Starting compute narrowing benchmark, please wait...")
	defer log.Print("Finished compute narrowing benchmark")

	cfgs := []benchmarkConfig{
		{name: "few keys", keys: 4, computes: 10, narrowFraction: 0, iterations: 20000},
		{name: "few keys narrowed", keys: 4, computes: 10, narrowFraction: 1, iterations: 20000},
		{name: "wide", keys: 64, computes: 100, narrowFraction: 0, iterations: 2000},
		{name: "wide half narrowed", keys: 64, computes: 100, narrowFraction: 0.5, iterations: 2000},
		{name: "wide narrowed", keys: 64, computes: 100, narrowFraction: 1, iterations: 2000},
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"test", "keys", "computes", "narrowed%", "nTimes", "time", "recomputes", "updateRate",
	})

	testRepeats := 5
	for _, cfg := range cfgs {
		log.Printf("Running '%s' config", cfg.name)

		best := struct {
			duration time.Duration
			count    int64
		}{duration: time.Hour}

		for i := 0; i < testRepeats; i++ {
			count := new(int64)
			write := benchmarkMakeState(cfg, count)
			*count = 0

			start := time.Now()
			benchmarkRun(cfg, write)
			duration := time.Since(start)
			if duration < best.duration {
				best.duration = duration
				best.count = *count
			}
		}

		updateRate := float64(cfg.iterations) / (float64(best.duration) / float64(time.Millisecond))
		table.Append([]string{
			cfg.name,
			fmt.Sprint(cfg.keys),
			fmt.Sprint(cfg.computes),
			fmt.Sprint(100 * cfg.narrowFraction),
			humanize.Comma(int64(cfg.iterations)),
			fmt.Sprint(best.duration),
			humanize.Comma(best.count),
			humanize.Comma(int64(updateRate)),
		})
	}
	table.Render()
}

type benchmarkConfig struct {
	name           string  // friendly name for the test, should be unique
	keys           int     // plain keys on the state
	computes       int     // computes declared on the state
	narrowFraction float64 // fraction of computes that yield after reading one key
	iterations     int     // actions per run
}

// benchmarkMakeState builds one state whose computes each sum three keys.
// Narrowed computes only re-run when the first of them is written. It
// returns an action writing key i.
func benchmarkMakeState(cfg benchmarkConfig, counter *int64) func(i, v int) error {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := pods.NewEngine(pods.WithLogger(quiet), pods.WithErrorHandler(func(err error) {
		log.Panic(err)
	}))

	init := make(map[string]any, cfg.keys)
	for i := 0; i < cfg.keys; i++ {
		init[key(i)] = i
	}

	random := rand.New(rand.NewSource(0))
	opts := make([]pods.StateOption, 0, cfg.computes)
	for c := 0; c < cfg.computes; c++ {
		sources := []string{key(c % cfg.keys), key((c + 1) % cfg.keys), key((c + 2) % cfg.keys)}
		sum := func(p *pods.Proxy) any {
			*counter++
			total := 0
			for _, k := range sources {
				total += pods.Get[int](p, k)
			}
			return total
		}

		var fn pods.ComputeFunc
		if random.Float64() < cfg.narrowFraction {
			fn = pods.Narrow(func(p *pods.Proxy) {
				p.Get(sources[0])
			}).Compute(sum)
		} else {
			fn = func(p *pods.Proxy, _ pods.Yield) any {
				return sum(p)
			}
		}
		opts = append(opts, pods.WithCompute(fmt.Sprintf("sum%d", c), fn))
	}

	s, err := pods.NewState(e, init, opts...)
	if err != nil {
		log.Panic(err)
	}

	return func(i, v int) error {
		_, err := e.RunActionHandler(func() (any, error) {
			return nil, s.Draft().Set(key(i), v)
		})
		return err
	}
}

// benchmarkRun writes a random key on every iteration.
func benchmarkRun(cfg benchmarkConfig, write func(i, v int) error) {
	random := rand.New(rand.NewSource(0))
	for i := 0; i < cfg.iterations; i++ {
		if err := write(random.Intn(cfg.keys), i); err != nil {
			log.Panic(err)
		}
	}
}

func key(i int) string {
	return fmt.Sprintf("k%d", i)
}
