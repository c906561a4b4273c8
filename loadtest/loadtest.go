package loadtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultQuery touches every demo service through nested entities.
const DefaultQuery = `query Benchmark {
  users {
    id
    username
    name
    reviews {
      id
      body
      product {
        upc
        name
        price
        weight
        inStock
        shippingEstimate
      }
    }
  }
  topProducts {
    upc
    name
    price
    weight
    inStock
    shippingEstimate
    reviews {
      id
      body
      author {
        id
        username
        name
      }
    }
  }
}`

// DefaultRoutes are the routes the harness serves.
var DefaultRoutes = []string{"/federation", "/stitching", "/monolith"}

// Options configure a load run.
type Options struct {
	// Target is the base URL of the harness, e.g. http://127.0.0.1:3000.
	Target      string
	Routes      []string
	Query       string
	Concurrency int
	// Duration bounds each route's run. Requests, when positive, bounds it
	// by the number of requests instead.
	Duration time.Duration
	Requests int

	Client *http.Client
	Logger *zap.Logger
}

// Report summarizes the run of one route.
type Report struct {
	Route             string
	Requests          int64
	Errors            int64
	Elapsed           time.Duration
	RequestsPerSecond float64
	P50               time.Duration
	P90               time.Duration
	P99               time.Duration
	Max               time.Duration
}

// Run drives load at every route in turn and reports per route.
func Run(ctx context.Context, opt Options) ([]Report, error) {
	if opt.Target == "" {
		return nil, errors.New("loadtest: target is required")
	}
	if opt.Duration <= 0 && opt.Requests <= 0 {
		return nil, errors.New("loadtest: duration or request count is required")
	}
	if len(opt.Routes) == 0 {
		opt.Routes = DefaultRoutes
	}
	if opt.Query == "" {
		opt.Query = DefaultQuery
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = 1
	}
	if opt.Client == nil {
		opt.Client = &http.Client{
			Timeout:   10 * time.Second,
			Transport: &http.Transport{MaxIdleConnsPerHost: opt.Concurrency},
		}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	body, err := json.Marshal(map[string]string{"query": opt.Query})
	if err != nil {
		return nil, fmt.Errorf("loadtest: failed to encode request: %w", err)
	}

	reports := make([]Report, 0, len(opt.Routes))
	for _, route := range opt.Routes {
		report, err := runRoute(ctx, opt, strings.TrimRight(opt.Target, "/")+route, body)
		if err != nil {
			return nil, err
		}
		report.Route = route
		opt.Logger.Info("route finished",
			zap.String("route", route),
			zap.Int64("requests", report.Requests),
			zap.Int64("errors", report.Errors))
		reports = append(reports, report)
	}

	return reports, nil
}

func runRoute(ctx context.Context, opt Options, url string, body []byte) (Report, error) {
	if opt.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opt.Duration)
		defer cancel()
	}

	var (
		issued   atomic.Int64
		requests atomic.Int64
		failures atomic.Int64
	)
	latencies := make([][]time.Duration, opt.Concurrency)

	start := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < opt.Concurrency; w++ {
		eg.Go(func() error {
			for egCtx.Err() == nil {
				if opt.Requests > 0 && issued.Inc() > int64(opt.Requests) {
					return nil
				}

				began := time.Now()
				err := send(egCtx, opt.Client, url, body)
				if egCtx.Err() != nil {
					return nil
				}

				requests.Inc()
				latencies[w] = append(latencies[w], time.Since(began))
				if err != nil {
					failures.Inc()
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Report{}, err
	}
	elapsed := time.Since(start)

	var all []time.Duration
	for _, l := range latencies {
		all = append(all, l...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	report := Report{
		Requests: requests.Load(),
		Errors:   failures.Load(),
		Elapsed:  elapsed,
		P50:      Percentile(all, 50),
		P90:      Percentile(all, 90),
		P99:      Percentile(all, 99),
	}
	if len(all) > 0 {
		report.Max = all[len(all)-1]
	}
	if elapsed > 0 {
		report.RequestsPerSecond = float64(report.Requests) / elapsed.Seconds()
	}

	return report, nil
}

func send(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Percentile returns the p-th percentile of sorted using the nearest-rank
// method, or zero for no samples.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(p/100*float64(len(sorted))+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

// WriteReports prints reports as an aligned table.
func WriteReports(w io.Writer, reports []Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tREQUESTS\tERRORS\tREQ/S\tP50\tP90\tP99\tMAX")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%s\t%s\t%s\t%s\n",
			r.Route, r.Requests, r.Errors, r.RequestsPerSecond,
			r.P50.Round(time.Microsecond), r.P90.Round(time.Microsecond),
			r.P99.Round(time.Microsecond), r.Max.Round(time.Microsecond))
	}
	return tw.Flush()
}
