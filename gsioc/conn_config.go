package gsioc

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-gsioc/logger"
)

// Default bus timings. These are hardware requirements of GSIOC devices.
const (
	DefaultConnectSettle         = 50 * time.Millisecond  // after an address frame
	DefaultDisconnectSettle      = 100 * time.Millisecond // after a disconnect
	DefaultPollInterval          = 20 * time.Millisecond  // between immediate response polls
	DefaultBufferedCharDelay     = 10 * time.Millisecond  // after each buffered byte and its echo
	DefaultBufferedLineFeedDelay = 20 * time.Millisecond  // after the LF echo
	DefaultBufferedSettle        = 100 * time.Millisecond // after the closing CR
	DefaultScanInterval          = 50 * time.Millisecond  // between scan positions

	DefaultImmediateTimeout = 5 * time.Second

	DefaultQueueTimeout = 3 * time.Second
	DefaultQueueSize    = 16
)

// Range limits for configurable values.
const (
	MaxDelay = 5 * time.Second

	MinImmediateTimeout = 100 * time.Millisecond
	MaxImmediateTimeout = 10 * time.Minute

	MaxTimingScale = 100.0
)

// ConnectionConfig holds the configuration of a Connection and of the Bus
// built on it.
type ConnectionConfig struct {
	connectSettle         time.Duration
	disconnectSettle      time.Duration
	pollInterval          time.Duration
	bufferedCharDelay     time.Duration
	bufferedLineFeedDelay time.Duration
	bufferedSettle        time.Duration
	scanInterval          time.Duration

	// timingScale multiplies every delay above and immediateTimeout.
	timingScale float64

	// immediateTimeout bounds a whole immediate command exchange.
	immediateTimeout time.Duration

	queueTimeout time.Duration
	queueSize    int

	clock  Clock
	logger logger.Logger
}

// NewConnectionConfig creates a configuration with the default bus timings.
// opts are applied in order; see the With* functions.
func NewConnectionConfig(opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		connectSettle:         DefaultConnectSettle,
		disconnectSettle:      DefaultDisconnectSettle,
		pollInterval:          DefaultPollInterval,
		bufferedCharDelay:     DefaultBufferedCharDelay,
		bufferedLineFeedDelay: DefaultBufferedLineFeedDelay,
		bufferedSettle:        DefaultBufferedSettle,
		scanInterval:          DefaultScanInterval,
		timingScale:           1,
		immediateTimeout:      DefaultImmediateTimeout,
		queueTimeout:          DefaultQueueTimeout,
		queueSize:             DefaultQueueSize,
		clock:                 SystemClock,
		logger:                logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *ConnectionConfig) scaled(d time.Duration) time.Duration {
	if cfg.timingScale == 1 {
		return d
	}

	return time.Duration(float64(d) * cfg.timingScale)
}

// --- Getters ---

// ConnectSettle returns the wait after an address frame.
func (cfg *ConnectionConfig) ConnectSettle() time.Duration { return cfg.scaled(cfg.connectSettle) }

// DisconnectSettle returns the wait after a disconnect byte.
func (cfg *ConnectionConfig) DisconnectSettle() time.Duration {
	return cfg.scaled(cfg.disconnectSettle)
}

// PollInterval returns the wait between immediate response polls.
func (cfg *ConnectionConfig) PollInterval() time.Duration { return cfg.scaled(cfg.pollInterval) }

// BufferedCharDelay returns the wait after each buffered byte.
func (cfg *ConnectionConfig) BufferedCharDelay() time.Duration {
	return cfg.scaled(cfg.bufferedCharDelay)
}

// BufferedLineFeedDelay returns the extra wait after the opening LF is echoed.
func (cfg *ConnectionConfig) BufferedLineFeedDelay() time.Duration {
	return cfg.scaled(cfg.bufferedLineFeedDelay)
}

// BufferedSettle returns the final wait of a buffered command.
func (cfg *ConnectionConfig) BufferedSettle() time.Duration { return cfg.scaled(cfg.bufferedSettle) }

// ScanInterval returns the wait between scan positions.
func (cfg *ConnectionConfig) ScanInterval() time.Duration { return cfg.scaled(cfg.scanInterval) }

// TimingScale returns the multiplier applied to every bus delay.
func (cfg *ConnectionConfig) TimingScale() float64 { return cfg.timingScale }

// ImmediateTimeout returns the upper bound of an immediate command exchange.
// It scales with the poll interval so a scaled bus allows responses of the
// same length.
func (cfg *ConnectionConfig) ImmediateTimeout() time.Duration {
	return cfg.scaled(cfg.immediateTimeout)
}

// QueueTimeout returns how long a Bus request may wait to be queued.
func (cfg *ConnectionConfig) QueueTimeout() time.Duration { return cfg.queueTimeout }

// QueueSize returns the Bus request queue size.
func (cfg *ConnectionConfig) QueueSize() int { return cfg.queueSize }

// Clock returns the configured clock.
func (cfg *ConnectionConfig) Clock() Clock { return cfg.clock }

// GetLogger returns the configured logger.
func (cfg *ConnectionConfig) GetLogger() logger.Logger { return cfg.logger }

// --- ConnOption ---

// ConnOption is a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc func(*ConnectionConfig) error

func (f connOptFunc) apply(cfg *ConnectionConfig) error { return f(cfg) }

func delayOption(name string, d time.Duration, set func(*ConnectionConfig)) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < 0 || d > MaxDelay {
			return fmt.Errorf("gsioc: %s %v out of range [0, %v]", name, d, MaxDelay)
		}
		set(cfg)

		return nil
	})
}

// WithConnectSettle sets the wait after an address frame.
func WithConnectSettle(d time.Duration) ConnOption {
	return delayOption("connect settle", d, func(cfg *ConnectionConfig) { cfg.connectSettle = d })
}

// WithDisconnectSettle sets the wait after a disconnect byte.
func WithDisconnectSettle(d time.Duration) ConnOption {
	return delayOption("disconnect settle", d, func(cfg *ConnectionConfig) { cfg.disconnectSettle = d })
}

// WithPollInterval sets the wait between immediate response polls.
func WithPollInterval(d time.Duration) ConnOption {
	return delayOption("poll interval", d, func(cfg *ConnectionConfig) { cfg.pollInterval = d })
}

// WithBufferedCharDelay sets the wait after each buffered byte.
func WithBufferedCharDelay(d time.Duration) ConnOption {
	return delayOption("buffered char delay", d, func(cfg *ConnectionConfig) { cfg.bufferedCharDelay = d })
}

// WithBufferedLineFeedDelay sets the extra wait after the opening LF is echoed.
func WithBufferedLineFeedDelay(d time.Duration) ConnOption {
	return delayOption("buffered line feed delay", d, func(cfg *ConnectionConfig) { cfg.bufferedLineFeedDelay = d })
}

// WithBufferedSettle sets the final wait of a buffered command.
func WithBufferedSettle(d time.Duration) ConnOption {
	return delayOption("buffered settle", d, func(cfg *ConnectionConfig) { cfg.bufferedSettle = d })
}

// WithScanInterval sets the wait between scan positions.
func WithScanInterval(d time.Duration) ConnOption {
	return delayOption("scan interval", d, func(cfg *ConnectionConfig) { cfg.scanInterval = d })
}

// WithTimingScale multiplies every bus delay and the immediate timeout by f.
// Slow USB adapters and long cable runs sometimes need f > 1. f must be in
// (0, 100].
func WithTimingScale(f float64) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if f <= 0 || f > MaxTimingScale {
			return fmt.Errorf("gsioc: timing scale %v out of range (0, %v]", f, MaxTimingScale)
		}
		cfg.timingScale = f

		return nil
	})
}

// WithImmediateTimeout bounds a whole immediate command exchange. A device
// still streaming when it expires fails the command with ErrResponseTimeout.
func WithImmediateTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d < MinImmediateTimeout || d > MaxImmediateTimeout {
			return fmt.Errorf("gsioc: immediate timeout %v out of range [%v, %v]",
				d, MinImmediateTimeout, MaxImmediateTimeout)
		}
		cfg.immediateTimeout = d

		return nil
	})
}

// WithQueueTimeout sets how long a Bus request may wait to enter the queue.
func WithQueueTimeout(d time.Duration) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if d <= 0 {
			return errors.New("gsioc: queue timeout must be positive")
		}
		cfg.queueTimeout = d

		return nil
	})
}

// WithQueueSize sets the Bus request queue size.
func WithQueueSize(size int) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if size < 1 {
			return errors.New("gsioc: queue size must be >= 1")
		}
		cfg.queueSize = size

		return nil
	})
}

// WithClock replaces the wall clock used for delays and timeouts.
func WithClock(c Clock) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if c == nil {
			return errors.New("gsioc: clock must not be nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ConnOption {
	return connOptFunc(func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("gsioc: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
