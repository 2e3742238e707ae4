package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TransfersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "transfers_created_total",
		Help:      "Transfers booked against arrival lots.",
	})
	TransferredQuantity = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "transferred_quantity_total",
		Help:      "Units moved to stores.",
	})
	DisposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "disposals_created_total",
		Help:      "Disposals booked, by reason.",
	}, []string{"reason"})
	PriceChanges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "price_changes_total",
		Help:      "Price history entries written.",
	})
	StockRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "stock_rejections_total",
		Help:      "Writes refused for insufficient remaining stock.",
	}, []string{"kind"})
	IdempotentReplays = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "idempotent_replays_total",
		Help:      "Writes answered from an earlier request with the same key.",
	}, []string{"kind"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flower",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flower",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// Middleware records request count and latency per route template.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		route := c.Route().Path
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
