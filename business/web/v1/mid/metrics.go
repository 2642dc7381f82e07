package mid

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ardanlabs/pohchain/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set of request counters exposed on the debug /metrics endpoint.
var (
	requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pohchain",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of requests handled by status code.",
	}, []string{"code"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pohchain",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of requests being handled.",
	})

	errCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pohchain",
		Subsystem: "http",
		Name:      "errors_total",
		Help:      "Number of requests that returned an error.",
	})
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			inFlight.Inc()
			defer inFlight.Dec()

			// Call the next handler.
			err := handler(ctx, w, r)

			if v, verr := web.GetValues(ctx); verr == nil {
				requests.WithLabelValues(strconv.Itoa(v.StatusCode)).Inc()
			}

			// Increment if there is an error flowing through the request.
			if err != nil {
				errCount.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
