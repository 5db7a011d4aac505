package serve

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/YuminosukeSato/automl/registry"
)

// Monitor は予測呼び出し周りのリソース計測境界。
// サービングプロセス全体のCPU使用率とメモリ使用量を採取する。
// 計測は推論ロジックから分離されており、テレメトリ基盤に
// 差し替えても予測コードには触れない。
type Monitor struct {
	proc *process.Process
}

// NewMonitor は自プロセスを対象とするMonitorを作成する
func NewMonitor() *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		// プロセス情報が取れない環境ではランタイム統計だけで動く
		proc = nil
	}
	return &Monitor{proc: proc}
}

// Sample は呼び出し時点のリソース状態を1サンプルとして返す
func (m *Monitor) Sample(latency time.Duration) registry.ResourceSample {
	sample := registry.ResourceSample{
		Timestamp: time.Now().UTC(),
		LatencyMs: float64(latency.Microseconds()) / 1000.0,
	}

	if m.proc != nil {
		if cpu, err := m.proc.CPUPercent(); err == nil {
			sample.CPUPercent = cpu
		}
		if mem, err := m.proc.MemoryInfo(); err == nil && mem != nil {
			sample.MemoryMB = float64(mem.RSS) / (1024 * 1024)
			return sample
		}
	}

	// gopsutilが使えないときはGoランタイムのヒープ統計で代替する
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	sample.MemoryMB = float64(ms.Alloc) / (1024 * 1024)
	return sample
}
