package health_test

import (
	"context"
	"fmt"

	"github.com/jonwraymond/cachepipe/cache"
	"github.com/jonwraymond/cachepipe/health"
)

func ExampleAggregator() {
	backend := cache.NewMemoryBackend()

	agg := health.NewAggregator()
	agg.Register("backend", health.NewBackendChecker(backend))
	agg.Register("memory", health.NewMemoryChecker(backend, health.MemoryCheckerConfig{}))

	report := agg.Run(context.Background())
	fmt.Println(report.Status)
	fmt.Println(report.Results["memory"].Status)
	// Output:
	// healthy
	// healthy
}
