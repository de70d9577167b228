package collector_test

import (
	"fmt"
	"time"

	"opdflow/internal/collector"
	"opdflow/internal/core"
)

func ExampleNewCollector() {
	c := collector.NewCollector()

	c.Report(core.Event{Kind: core.EventProbe, Name: "sp-home-title", Success: true, Attempts: 3, Duration: 20 * time.Second})
	c.Report(core.Event{Kind: core.EventPhase, Name: "display", Success: true})

	c.Close()

	fmt.Printf("Collected %d events\n", len(c.Events()))
	// Output: Collected 2 events
}

func ExampleComputeMetrics() {
	events := []core.Event{
		{Kind: core.EventProbe, Name: "created-id", Success: true, Attempts: 1, Duration: time.Second},
		{Kind: core.EventProbe, Name: "created-id", Success: true, Attempts: 5, Duration: 4 * time.Second},
		{Kind: core.EventProbe, Name: "ca-display", Success: false, Attempts: 10},
	}

	m := collector.ComputeMetrics(events, time.Minute)

	fmt.Printf("Polls: %d, converged: %d, avg attempts: %.0f\n",
		m.Polls, m.Converged, m.Probes["created-id"].AvgAttempts)
	// Output: Polls: 3, converged: 2, avg attempts: 3
}
