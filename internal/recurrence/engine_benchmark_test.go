package recurrence

import (
	"testing"
	"time"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(timeconv.DefaultPolicy())
	def := Definition{
		Rule:      "FREQ=WEEKLY;INTERVAL=1;BYDAY=MO,TU,WE,TH,FR",
		StartDate: date(b, "2025-01-06"),
		StartTime: timeconv.Clock{Hour: 9},
		Location:  chicago(b),
		Duration:  90 * time.Minute,
	}
	window := Window{
		Start: time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, time.April, 6, 0, 0, 0, 0, time.UTC),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		expansion, err := engine.Expand(def, window, 0)
		if err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
		if len(expansion.Instances) == 0 {
			b.Fatal("expected instances to be generated")
		}
	}
}
