package benchmark

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/google/uuid"

	"rotathumb/pkg/cache"
	"rotathumb/pkg/imagefilter"
	"rotathumb/pkg/messaging"
	"rotathumb/pkg/render"
	"rotathumb/pkg/rotation"
	"rotathumb/pkg/worker"
)

// BenchmarkResult represents the result of a benchmark run
type BenchmarkResult struct {
	DecodeTime    time.Duration
	RotateTime    time.Duration
	ThumbnailTime time.Duration
	EncodeTime    time.Duration
	TotalTime     time.Duration
	Frames        int
}

// CPUInfo holds information about the CPU
type CPUInfo struct {
	Cores       int
	Threads     int
	UseParallel bool
}

// GetCPUInfo returns information about the CPU
func GetCPUInfo() CPUInfo {
	return CPUInfo{
		Cores:       runtime.NumCPU(),
		Threads:     runtime.GOMAXPROCS(0),
		UseParallel: runtime.GOMAXPROCS(0) > 1,
	}
}

// RunPhaseBenchmark times each step of a sweep. Frames are encoded to
// io.Discard so disk speed does not skew the numbers.
func RunPhaseBenchmark(job render.Job) (BenchmarkResult, error) {
	var result BenchmarkResult
	if err := job.Validate(); err != nil {
		return result, err
	}

	// Validate has already checked every option
	rotator, _ := rotation.NewRotator(job.Engine, job.Expand)
	fill, _ := rotation.ParseColor(job.Fill)
	filter, _ := rotation.ParseFilter(job.Filter)
	encode := imgio.PNGEncoder()

	startTime := time.Now()
	img, err := render.Open(job)
	if err != nil {
		return result, err
	}
	img = imagefilter.Apply(img, imagefilter.Options{Grayscale: job.Grayscale})
	result.DecodeTime = time.Since(startTime)

	for _, angle := range job.Angles {
		startTime = time.Now()
		rotated := rotator.Rotate(img, angle, fill)
		result.RotateTime += time.Since(startTime)

		startTime = time.Now()
		thumb := rotation.Thumbnail(rotated, job.Width, job.Height, filter)
		result.ThumbnailTime += time.Since(startTime)

		startTime = time.Now()
		if err := encode(io.Discard, thumb); err != nil {
			return result, fmt.Errorf("encode angle %d: %w", angle, err)
		}
		result.EncodeTime += time.Since(startTime)
		result.Frames++
	}

	result.TotalTime = result.DecodeTime + result.RotateTime + result.ThumbnailTime + result.EncodeTime
	return result, nil
}

// RunCachedBenchmark processes the job twice through a cached processor and
// returns the cold and warm wall times
func RunCachedBenchmark(ctx context.Context, job render.Job) (cold, warm time.Duration, err error) {
	store := cache.NewInMemoryJobStore()
	p := worker.NewProcessor(store, cache.NewInMemoryCache(time.Hour))

	run := func() (time.Duration, error) {
		startTime := time.Now()
		err := p.Process(ctx, messaging.JobMessage{JobID: uuid.New().String(), Job: job})
		return time.Since(startTime), err
	}

	if cold, err = run(); err != nil {
		return 0, 0, err
	}
	if warm, err = run(); err != nil {
		return 0, 0, err
	}
	return cold, warm, nil
}

// FormatBenchmarkResult formats a benchmark result for display
func FormatBenchmarkResult(result BenchmarkResult) string {
	return fmt.Sprintf(
		"Decode: %v\nRotate: %v\nThumbnail: %v\nEncode: %v\nTotal: %v (%d frames)",
		result.DecodeTime,
		result.RotateTime,
		result.ThumbnailTime,
		result.EncodeTime,
		result.TotalTime,
		result.Frames,
	)
}

// CalculateImprovement calculates the percentage improvement of improved over baseline
func CalculateImprovement(baseline, improved time.Duration) float64 {
	if baseline == 0 {
		return 0
	}
	return 100 * (1 - float64(improved)/float64(baseline))
}

func percent(part, total time.Duration) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// GeneratePerformanceSummary generates a human-readable performance summary
func GeneratePerformanceSummary(phases BenchmarkResult, cold, warm time.Duration) string {
	cpuInfo := GetCPUInfo()

	var b strings.Builder
	fmt.Fprintf(&b, "\nPerformance Summary\n==================\n\n")
	fmt.Fprintf(&b, "Hardware Information:\n- CPU Cores: %d\n- Threads: %d\n- Parallel Execution: %t\n\n",
		cpuInfo.Cores, cpuInfo.Threads, cpuInfo.UseParallel)
	fmt.Fprintf(&b, "Sweep Phases:\n%s\n\n", FormatBenchmarkResult(phases))
	fmt.Fprintf(&b, "Execution Time Breakdown:\n")
	fmt.Fprintf(&b, "- Decode: %.2f%% of total time\n", percent(phases.DecodeTime, phases.TotalTime))
	fmt.Fprintf(&b, "- Rotate: %.2f%% of total time\n", percent(phases.RotateTime, phases.TotalTime))
	fmt.Fprintf(&b, "- Thumbnail: %.2f%% of total time\n", percent(phases.ThumbnailTime, phases.TotalTime))
	fmt.Fprintf(&b, "- Encode: %.2f%% of total time\n\n", percent(phases.EncodeTime, phases.TotalTime))
	fmt.Fprintf(&b, "Cache Impact:\n- Cold run: %v\n- Cached run: %v\n- Improvement: %.2f%%\n",
		cold, warm, CalculateImprovement(cold, warm))
	return b.String()
}
