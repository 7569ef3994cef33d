package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned without invoking the operation while the
	// breaker is open. Callers must treat it as "dependency unavailable",
	// never as a denial or a success.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrCallTimeout wraps the per-call deadline; it counts as a failure.
	ErrCallTimeout = errors.New("operation timed out")
)

// State is the breaker's current mode.
type State uint8

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. Zero fields take the defaults below.
type Config struct {
	// FailureThreshold opens the breaker once this many failures land
	// within one monitoring Window while closed.
	FailureThreshold int

	// SuccessThreshold closes the breaker after this many consecutive
	// successes while half-open.
	SuccessThreshold int

	// RecoveryTimeout is how long the breaker stays open before letting
	// a probe call through.
	RecoveryTimeout time.Duration

	// Window bounds how long failures accumulate toward the threshold.
	Window time.Duration

	// CallTimeout bounds each wrapped call; an overrun counts as a
	// failure. Zero disables the per-call deadline.
	CallTimeout time.Duration

	// Clock overrides time.Now for state transitions.
	Clock func() time.Time
}

// Stats is a read-only snapshot for health reporting.
type Stats struct {
	State       State
	Failures    int
	Successes   int
	NextRetryAt time.Time
}

// Breaker protects calls into a dependency from cascading failure. State
// and counters are process-local back-pressure, not shared truth.
type Breaker struct {
	config Config
	clock  func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	windowStart time.Time
	openedAt    time.Time
}

func New(cfg Config) (*Breaker, error) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.RecoveryTimeout == 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.FailureThreshold < 1 || cfg.SuccessThreshold < 1 {
		return nil, errors.New("invalid breaker threshold configuration")
	}
	if cfg.RecoveryTimeout < 0 || cfg.Window < 0 || cfg.CallTimeout < 0 {
		return nil, errors.New("invalid breaker timing configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Breaker{
		config: cfg,
		clock:  clock,
		state:  StateClosed,
	}, nil
}

// Execute runs the operation through the breaker. While open it fails fast
// with [ErrCircuitOpen]; otherwise the call runs under the per-call
// deadline and its outcome feeds the state machine.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	callCtx := ctx
	if b.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.config.CallTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- op(callCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			b.recordFailure()
			return err
		}
		b.recordSuccess()
		return nil
	case <-callCtx.Done():
		b.recordFailure()
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrCallTimeout, callCtx.Err())
	}
}

// Stats reports the breaker's current state without mutating it.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{
		State:     b.state,
		Failures:  b.failures,
		Successes: b.successes,
	}
	if b.state == StateOpen {
		stats.NextRetryAt = b.openedAt.Add(b.config.RecoveryTimeout)
	}
	return stats
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		if b.clock().Sub(b.openedAt) >= b.config.RecoveryTimeout {
			b.state = StateHalfOpen
			b.successes = 0
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()

	switch b.state {
	case StateHalfOpen:
		b.trip(now)
	case StateClosed:
		if b.windowStart.IsZero() || now.Sub(b.windowStart) > b.config.Window {
			b.windowStart = now
			b.failures = 0
		}
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.trip(now)
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen {
		return
	}

	b.successes++
	if b.successes >= b.config.SuccessThreshold {
		b.state = StateClosed
		b.failures = 0
		b.successes = 0
		b.windowStart = time.Time{}
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
	b.failures = 0
	b.successes = 0
	b.windowStart = time.Time{}
}
