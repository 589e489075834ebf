package control_test

import (
	"sync"
	"testing"

	"github.com/momentics/webs/control"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistryCounters(t *testing.T) {
	mr := control.NewMetricsRegistry()
	assert.True(t, mr.Updated().IsZero())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				mr.Add("frames", 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), mr.Counter("frames"))
	assert.Equal(t, int64(990), mr.Add("frames", -10))

	mr.Set("label", "x")
	assert.Equal(t, int64(1), mr.Add("label", 1))

	snap := mr.GetSnapshot()
	snap["frames"] = int64(0)
	assert.Equal(t, int64(990), mr.Counter("frames"), "snapshot is a copy")
	assert.False(t, mr.Updated().IsZero())
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("answer", func() any { return 42 })

	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Contains(t, state, "platform.cpus")
	assert.Contains(t, state, "platform.goroutines")
}

func TestDebugProbesUnregister(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b", func() any { return nil })
	dp.RegisterProbe("a", func() any { return nil })
	assert.Equal(t, []string{"a", "b"}, dp.Names())

	dp.UnregisterProbe("a")
	assert.Equal(t, []string{"b"}, dp.Names())
	assert.NotContains(t, dp.DumpState(), "a")
}
