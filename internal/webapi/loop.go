package webapi

import (
	"container/heap"
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultFrameRate is the animation frame rate when none is configured.
const DefaultFrameRate = 60

// Loop is a single-threaded cooperative event loop.
//
// Nothing runs until Run or Tick is called. Each macrotask (a due timer or
// one batch of animation frames) is followed by a full microtask drain.
type Loop struct {
	logger *zap.Logger
	start  time.Time

	timers      timerQueue
	timerIDs    map[int]*timer
	nextTimerID int
	seq         uint64

	frames      []*frame
	frameIDs    map[int]*frame
	nextFrameID int
	limiter     *rate.Limiter

	microtasks []func(context.Context) error

	onError func(error)
}

type timer struct {
	id       int
	due      time.Time
	seq      uint64
	callback Callable
	args     []any
	index    int
}

type frame struct {
	id       int
	callback Callable
}

// NewLoop creates a loop. A frameRate of zero or less selects DefaultFrameRate.
func NewLoop(logger *zap.Logger, frameRate float64) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	l := &Loop{
		logger:      logger.With(zap.String("component", "event-loop")),
		start:       time.Now(),
		timerIDs:    make(map[int]*timer),
		nextTimerID: 1,
		frameIDs:    make(map[int]*frame),
		nextFrameID: 1,
		limiter:     rate.NewLimiter(rate.Limit(frameRate), 1),
	}
	l.onError = func(err error) {
		l.logger.Error("Uncaught error in callback", zap.Error(err))
	}
	return l
}

// OnError replaces the handler for errors escaping callbacks.
func (l *Loop) OnError(fn func(error)) {
	l.onError = fn
}

// Now returns milliseconds since the loop was created.
func (l *Loop) Now() float64 {
	return float64(time.Since(l.start).Microseconds()) / 1000
}

// SetTimeout schedules cb after delay and returns its id.
func (l *Loop) SetTimeout(cb Callable, delay time.Duration, args ...any) int {
	if delay < 0 {
		delay = 0
	}
	t := &timer{
		id:       l.nextTimerID,
		due:      time.Now().Add(delay),
		seq:      l.seq,
		callback: cb,
		args:     args,
	}
	l.nextTimerID++
	l.seq++
	heap.Push(&l.timers, t)
	l.timerIDs[t.id] = t
	return t.id
}

// ClearTimeout cancels a timer. Unknown or already fired ids are ignored.
func (l *Loop) ClearTimeout(id int) {
	t, ok := l.timerIDs[id]
	if !ok {
		return
	}
	heap.Remove(&l.timers, t.index)
	delete(l.timerIDs, id)
}

// RequestAnimationFrame schedules cb for the next frame and returns its id.
func (l *Loop) RequestAnimationFrame(cb Callable) int {
	f := &frame{id: l.nextFrameID, callback: cb}
	l.nextFrameID++
	l.frames = append(l.frames, f)
	l.frameIDs[f.id] = f
	return f.id
}

// CancelAnimationFrame cancels a pending frame. Unknown ids are ignored.
func (l *Loop) CancelAnimationFrame(id int) {
	f, ok := l.frameIDs[id]
	if !ok {
		return
	}
	delete(l.frameIDs, id)
	for i, pending := range l.frames {
		if pending == f {
			l.frames = append(l.frames[:i], l.frames[i+1:]...)
			break
		}
	}
}

// QueueMicrotask schedules cb to run before the next macrotask.
func (l *Loop) QueueMicrotask(cb Callable) {
	l.Enqueue(func(ctx context.Context) error {
		_, err := cb.Call(ctx)
		return err
	})
}

// Enqueue schedules a host job as a microtask.
func (l *Loop) Enqueue(job func(context.Context) error) {
	l.microtasks = append(l.microtasks, job)
}

// Pending reports the number of queued timers, frames and microtasks.
func (l *Loop) Pending() int {
	return len(l.timers) + len(l.frames) + len(l.microtasks)
}

// DrainMicrotasks runs microtasks until the queue is empty, including those
// queued while draining.
func (l *Loop) DrainMicrotasks(ctx context.Context) {
	for len(l.microtasks) > 0 {
		job := l.microtasks[0]
		l.microtasks[0] = nil
		l.microtasks = l.microtasks[1:]
		if err := job(ctx); err != nil {
			l.onError(err)
		}
	}
}

// Run processes work until nothing is pending or ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		more, err := l.Tick(ctx)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Tick waits for and runs one macrotask. It reports whether work remains.
func (l *Loop) Tick(ctx context.Context) (bool, error) {
	l.DrainMicrotasks(ctx)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(l.timers) == 0 && len(l.frames) == 0 {
		return false, nil
	}

	var frameAt time.Time
	var reservation *rate.Reservation
	if len(l.frames) > 0 {
		reservation = l.limiter.Reserve()
		frameAt = time.Now().Add(reservation.Delay())
	}

	runTimer := len(l.timers) > 0 && (reservation == nil || !l.timers[0].due.After(frameAt))
	if runTimer && reservation != nil {
		reservation.Cancel()
	}

	var wait time.Duration
	if runTimer {
		wait = time.Until(l.timers[0].due)
	} else {
		wait = time.Until(frameAt)
	}
	if err := sleep(ctx, wait); err != nil {
		if reservation != nil && !runTimer {
			reservation.Cancel()
		}
		return false, err
	}

	if runTimer {
		l.fireTimer(ctx)
	} else {
		l.fireFrames(ctx)
	}

	l.DrainMicrotasks(ctx)
	return l.Pending() > 0, nil
}

func (l *Loop) fireTimer(ctx context.Context) {
	t := heap.Pop(&l.timers).(*timer)
	delete(l.timerIDs, t.id)
	if _, err := t.callback.Call(ctx, t.args...); err != nil {
		l.onError(err)
	}
}

func (l *Loop) fireFrames(ctx context.Context) {
	// Frames requested during this batch run on the next one.
	batch := l.frames
	l.frames = nil
	now := l.Now()

	for _, f := range batch {
		if _, live := l.frameIDs[f.id]; !live {
			continue
		}
		delete(l.frameIDs, f.id)
		if _, err := f.callback.Call(ctx, now); err != nil {
			l.onError(err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return t
}
