package vision

import (
	"fmt"
	"time"
)

// Config fixes the frame-capture parameters for the lifetime of a capture
// cycle. It is validated at construction; there are no loose option bags.
type Config struct {
	Width    int
	Height   int
	Quality  float64
	Format   string
	Interval time.Duration
}

// DefaultConfig matches the dashboard contract: 640x480 JPEG at quality
// 0.8, one frame every 3 seconds.
func DefaultConfig() Config {
	return Config{
		Width:    640,
		Height:   480,
		Quality:  0.8,
		Format:   "jpeg",
		Interval: 3 * time.Second,
	}
}

// Normalize fills zero values with defaults and validates the result.
func (c Config) Normalize() (Config, error) {
	def := DefaultConfig()
	if c.Width == 0 {
		c.Width = def.Width
	}
	if c.Height == 0 {
		c.Height = def.Height
	}
	if c.Quality == 0 {
		c.Quality = def.Quality
	}
	if c.Format == "" {
		c.Format = def.Format
	}
	if c.Interval == 0 {
		c.Interval = def.Interval
	}

	if c.Width < 0 || c.Height < 0 {
		return c, fmt.Errorf("frame size %dx%d is invalid", c.Width, c.Height)
	}
	if c.Quality <= 0 || c.Quality > 1 {
		return c, fmt.Errorf("frame quality %.2f outside (0, 1]", c.Quality)
	}
	if c.Format != "jpeg" {
		return c, fmt.Errorf("unsupported frame format %q", c.Format)
	}
	if c.Interval < 100*time.Millisecond {
		return c, fmt.Errorf("frame interval %s is too aggressive", c.Interval)
	}
	return c, nil
}
