package animation

import (
	"image"

	"anigiffy/internal/frameprep"
	"anigiffy/internal/project"
	"anigiffy/internal/transition"
)

// frameSink receives each quantized display frame with its delay in
// centiseconds, in display order.
type frameSink func(frame *image.Paletted, delay int) error

// sequencer turns prepared frames into quantized display frames as they
// arrive and hands them straight to the sink. Only the first and the previous
// prepared frames are retained, since each frame's transition needs its
// successor and the last wraps to the first.
type sequencer struct {
	settings project.Settings
	curve    transition.Curve
	sink     frameSink

	first        *image.NRGBA
	prev         *image.NRGBA
	prevDuration int
	count        int

	durations []int
}

func newSequencer(s project.Settings, curve transition.Curve, sink frameSink) *sequencer {
	return &sequencer{settings: s, curve: curve, sink: sink}
}

func (q *sequencer) push(img *image.NRGBA, duration int) error {
	if q.prev == nil {
		q.first = img
	} else if err := q.emit(q.prev, q.prevDuration, img); err != nil {
		return err
	}
	q.prev, q.prevDuration = img, duration
	q.count++
	return nil
}

func (q *sequencer) finish() error {
	if q.prev == nil {
		return nil
	}
	err := q.emit(q.prev, q.prevDuration, q.first)
	q.first, q.prev = nil, nil
	return err
}

// emit writes curr followed by its transition toward next. The transition
// time is carved out of curr's duration and split evenly across the steps,
// with the remainder added to the last step. Transition delays are rounded
// on the running total so the group lasts round(td/10) centiseconds.
func (q *sequencer) emit(curr *image.NRGBA, duration int, next *image.NRGBA) error {
	td := q.settings.TransitionDuration
	if td <= 0 {
		return q.write(curr, duration, centiseconds(duration))
	}
	hold := duration - td
	if err := q.write(curr, hold, centiseconds(hold)); err != nil {
		return err
	}

	steps := q.settings.TransitionSteps
	blends, err := transition.Synthesize(curr, next, steps, q.curve)
	if err != nil {
		return err
	}
	per, rem := td/steps, td%steps
	elapsed := 0
	for i, blend := range blends {
		d := per
		if i == len(blends)-1 {
			d += rem
		}
		if q.settings.Transparent {
			frameprep.Binarize(blend, q.settings.AlphaThreshold)
		}
		start := elapsed
		elapsed += d
		if err := q.write(blend, d, centiseconds(elapsed)-centiseconds(start)); err != nil {
			return err
		}
		blends[i] = nil
	}
	return nil
}

func (q *sequencer) write(img *image.NRGBA, ms, delay int) error {
	q.durations = append(q.durations, ms)
	return q.sink(quantizeFrame(img, q.settings.Transparent), delay)
}

func centiseconds(ms int) int {
	return (ms + 5) / 10
}
