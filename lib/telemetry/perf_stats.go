package telemetry

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var meter = otel.Meter("dealcatalog.perf_stats")
var cpuGauge, _ = meter.Float64Gauge("cpu_usage")
var memoryGauge, _ = meter.Int64Gauge("allocated_mb")
var rssGauge, _ = meter.Int64Gauge("rss_mb")
var goroutineGauge, _ = meter.Int64Gauge("goroutine_count")

// InstrumentPerfStats samples process statistics every interval until ctx is done,
// samples are recorded as otel gauges and reported as debug output.
func InstrumentPerfStats(ctx context.Context, tel API, interval time.Duration) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		tel.ReportWarning("perf-stats.process", err)
		return
	}

	go func() {
		var memStats runtime.MemStats
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runtime.ReadMemStats(&memStats)

				cpuUsage, err := proc.CPUPercentWithContext(ctx)
				if err == nil {
					cpuGauge.Record(ctx, cpuUsage)
				}
				var rss uint64
				mem, err := proc.MemoryInfoWithContext(ctx)
				if err == nil {
					rss = mem.RSS
					rssGauge.Record(ctx, int64(rss/1_000_000))
				}

				memoryGauge.Record(ctx, int64(memStats.Alloc/1_000_000))
				goroutineGauge.Record(ctx, int64(runtime.NumGoroutine()))

				tel.ReportDebug(
					"perf stats",
					"cpu", cpuUsage,
					"rss_mb", rss/1_000_000,
					"alloc_mb", memStats.Alloc/1_000_000,
					"goroutines", runtime.NumGoroutine(),
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
