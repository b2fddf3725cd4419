package ui

import (
	"sync"
	"time"
)

// etaSmoothingFactor weights a new ETA sample against the previous one.
const etaSmoothingFactor = 0.3

// speedInterval is the minimum spacing between speed samples.
const speedInterval = 500 * time.Millisecond

// ProgressTracker holds the state shown by the TUI.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastETA       time.Duration
	lastCurrent   int
	lastSpeedCalc time.Time
	speed         float64 // files/sec over the last interval
	avgSpeed      float64 // exponentially smoothed
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64 // 0..1
	ETA         time.Duration
	CurrentFile string
	ErrorCount  int
	WarnCount   int
	Speed       float64
	AvgSpeed    float64
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		stage:         StageScanning,
		stageStart:    now,
		lastSpeedCalc: now,
	}
}

// SetStage moves to stage and resets per-stage counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = now
	p.lastETA = 0
	p.lastCurrent = 0
	p.lastSpeedCalc = now
	p.speed = 0
	p.avgSpeed = 0
}

// Update records progress within the current stage.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	if file != "" {
		p.currentFile = file
	}

	now := time.Now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < speedInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		p.speed = float64(delta) / elapsed.Seconds()
		if p.avgSpeed == 0 {
			p.avgSpeed = p.speed
		} else {
			p.avgSpeed = 0.2*p.speed + 0.8*p.avgSpeed
		}
	}
	p.lastCurrent = current
	p.lastSpeedCalc = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Errors returns a copy of the recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]ErrorEvent(nil), p.errors...)
}

// Stats returns a snapshot. It takes the write lock because the ETA is
// smoothed against the previous call.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := 0.0
	if p.total > 0 {
		progress = min(float64(p.current)/float64(p.total), 1.0)
	}

	return ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		Progress:    progress,
		ETA:         p.calculateETA(),
		CurrentFile: p.currentFile,
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed:       p.speed,
		AvgSpeed:    p.avgSpeed,
	}
}

// calculateETA extrapolates the stage's elapsed time. Caller holds p.mu.
func (p *ProgressTracker) calculateETA() time.Duration {
	if p.current == 0 || p.total == 0 || p.current >= p.total {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	fraction := float64(p.current) / float64(p.total)
	remaining := time.Duration(float64(elapsed)/fraction) - elapsed
	if remaining < 0 {
		return 0
	}

	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}
