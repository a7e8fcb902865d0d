package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// PredictionMetrics 预测请求指标
type PredictionMetrics struct {
	mu sync.RWMutex

	outcomes  map[string]int64 // 按结果代码计数: ok / bad_request / service_unavailable / internal
	materials map[string]int64 // 按预测材料计数

	latencyCount int64
	latencySum   time.Duration
	latencyMin   time.Duration
	latencyMax   time.Duration

	startTime time.Time
}

// LatencySummary 延迟摘要
type LatencySummary struct {
	Count     int64   `json:"count"`
	AverageMs float64 `json:"average_ms"`
	MinMs     float64 `json:"min_ms"`
	MaxMs     float64 `json:"max_ms"`
}

// Snapshot 指标快照
type Snapshot struct {
	Uptime    string           `json:"uptime"`
	Outcomes  map[string]int64 `json:"outcomes"`
	Materials map[string]int64 `json:"materials"`
	Latency   LatencySummary   `json:"latency"`
	System    SystemStats      `json:"system"`
}

// SystemStats 系统统计
type SystemStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	GCCount    uint32 `json:"gc_count"`
	NumCPU     int    `json:"num_cpu"`
}

// NewPredictionMetrics 创建预测指标收集器
func NewPredictionMetrics() *PredictionMetrics {
	return &PredictionMetrics{
		outcomes:  make(map[string]int64),
		materials: make(map[string]int64),
		startTime: time.Now(),
	}
}

// Observe 记录一次预测；material 仅在成功时非空
func (pm *PredictionMetrics) Observe(outcome, material string, elapsed time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.outcomes[outcome]++
	if material != "" {
		pm.materials[material]++
	}

	if pm.latencyCount == 0 || elapsed < pm.latencyMin {
		pm.latencyMin = elapsed
	}
	if elapsed > pm.latencyMax {
		pm.latencyMax = elapsed
	}
	pm.latencyCount++
	pm.latencySum += elapsed
}

// Snapshot 返回指标副本
func (pm *PredictionMetrics) Snapshot() Snapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(pm.startTime).Round(time.Second).String(),
		Outcomes:  make(map[string]int64, len(pm.outcomes)),
		Materials: make(map[string]int64, len(pm.materials)),
		Latency:   LatencySummary{Count: pm.latencyCount},
		System:    systemStats(),
	}
	for k, v := range pm.outcomes {
		snap.Outcomes[k] = v
	}
	for k, v := range pm.materials {
		snap.Materials[k] = v
	}
	if pm.latencyCount > 0 {
		snap.Latency.AverageMs = ms(pm.latencySum) / float64(pm.latencyCount)
		snap.Latency.MinMs = ms(pm.latencyMin)
		snap.Latency.MaxMs = ms(pm.latencyMax)
	}
	return snap
}

// ExportPrometheus 导出Prometheus文本格式
func (pm *PredictionMetrics) ExportPrometheus() string {
	snap := pm.Snapshot()
	var b strings.Builder

	b.WriteString("# HELP matclass_predictions_total Prediction requests by outcome\n")
	b.WriteString("# TYPE matclass_predictions_total counter\n")
	for _, k := range sortedKeys(snap.Outcomes) {
		fmt.Fprintf(&b, "matclass_predictions_total{outcome=%q} %d\n", k, snap.Outcomes[k])
	}

	b.WriteString("# HELP matclass_predicted_material_total Successful predictions by material\n")
	b.WriteString("# TYPE matclass_predicted_material_total counter\n")
	for _, k := range sortedKeys(snap.Materials) {
		fmt.Fprintf(&b, "matclass_predicted_material_total{material=%q} %d\n", k, snap.Materials[k])
	}

	b.WriteString("# HELP matclass_prediction_latency_ms_avg Average prediction latency\n")
	b.WriteString("# TYPE matclass_prediction_latency_ms_avg gauge\n")
	fmt.Fprintf(&b, "matclass_prediction_latency_ms_avg %f\n", snap.Latency.AverageMs)
	return b.String()
}

func systemStats() SystemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return SystemStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		GCCount:    m.NumGC,
		NumCPU:     runtime.NumCPU(),
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
