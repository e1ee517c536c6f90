package processing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Sensor is the distance sensor driver a node reads from.
type Sensor interface {
	// ReadDistanceMatrix blocks until a ranging result is available and
	// returns the row-major distances (mm) and target statuses.
	ReadDistanceMatrix(ctx context.Context) ([]int16, []uint8, error)
	SetResolution(resolution int) error
	SetFrequency(hz int) error
	SetSharpener(percent int) error
	StartRanging() error
	StopRanging() error
}

var (
	// ErrNotRanging is returned when reading from a stopped sensor.
	ErrNotRanging = errors.New("processing: sensor is not ranging")
	// ErrSetting reports an unsupported sensor setting.
	ErrSetting = errors.New("processing: unsupported sensor setting")
)

// SceneFunc returns the distance and status seen at (x, y) of a width x
// width matrix in the given frame.
type SceneFunc func(x, y, width int, frame uint64) (int16, uint8)

// Simulated is an in-memory Sensor that produces one matrix per ranging
// period from a SceneFunc.
type Simulated struct {
	mu         sync.Mutex
	scene      SceneFunc
	resolution int
	frequency  int
	sharpener  int
	ranging    bool
	frame      uint64
	last       time.Time
}

// NewSimulated returns a stopped 8x8 sensor ranging at 15 Hz. A nil scene
// yields a flat wall at 1000 mm.
func NewSimulated(scene SceneFunc) *Simulated {
	if scene == nil {
		scene = WallScene(1000)
	}
	return &Simulated{scene: scene, resolution: 64, frequency: 15}
}

func (s *Simulated) SetResolution(resolution int) error {
	if resolution != 16 && resolution != 64 {
		return fmt.Errorf("%w: resolution %d", ErrSetting, resolution)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolution = resolution
	return nil
}

func (s *Simulated) SetFrequency(hz int) error {
	if hz < 1 || hz > 60 {
		return fmt.Errorf("%w: frequency %d Hz", ErrSetting, hz)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = hz
	return nil
}

func (s *Simulated) SetSharpener(percent int) error {
	if percent < 0 || percent > 99 {
		return fmt.Errorf("%w: sharpener %d%%", ErrSetting, percent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sharpener = percent
	return nil
}

func (s *Simulated) StartRanging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranging = true
	return nil
}

func (s *Simulated) StopRanging() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranging = false
	return nil
}

// Resolution returns the configured resolution.
func (s *Simulated) Resolution() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolution
}

// Ranging reports whether the sensor is started.
func (s *Simulated) Ranging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranging
}

func (s *Simulated) ReadDistanceMatrix(ctx context.Context) ([]int16, []uint8, error) {
	s.mu.Lock()
	if !s.ranging {
		s.mu.Unlock()
		return nil, nil, ErrNotRanging
	}
	period := time.Second / time.Duration(s.frequency)
	wait := time.Until(s.last.Add(period))
	s.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	width := Width(s.resolution)
	distances := make([]int16, width*width)
	statuses := make([]uint8, width*width)
	for y := 0; y < width; y++ {
		for x := 0; x < width; x++ {
			distances[x+y*width], statuses[x+y*width] = s.scene(x, y, width, s.frame)
		}
	}
	s.frame++
	s.last = time.Now()
	return distances, statuses, nil
}
