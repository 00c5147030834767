package behavior

import (
	"math/rand"
	"sort"
)

// Archetype is the closed set of simulated viewer behaviors. Each has its
// own sampling rule; there is deliberately no interface here, just a tag
// switched on in Sample.
type Archetype int

const (
	Casual Archetype = iota
	Binge
	Skipper
	Completer
)

func (a Archetype) String() string {
	switch a {
	case Casual:
		return "casual"
	case Binge:
		return "binge"
	case Skipper:
		return "skipper"
	case Completer:
		return "completer"
	}
	return "unknown"
}

// Pick draws an archetype with the production weighting: most viewers are
// casual, completers are rare.
func Pick(r *rand.Rand) Archetype {
	x := r.Float64()
	switch {
	case x < 0.50:
		return Casual
	case x < 0.65:
		return Binge
	case x < 0.90:
		return Skipper
	default:
		return Completer
	}
}

// Interval is one continuous span of viewer presence, [StartSec, EndSec).
type Interval struct {
	StartSec int
	EndSec   int
}

// hazard returns the per-second dropoff probability at the given playback
// position. The baseline shape is U-ish: elevated near the hook (first
// 10%) and near the end (last 20%), lower in the middle.
func hazard(sec, duration int) float64 {
	progress := float64(sec) / float64(duration)
	switch {
	case progress < 0.1:
		return 0.15
	case progress < 0.5:
		return 0.05
	case progress > 0.8:
		return 0.12
	default:
		return 0.08
	}
}

// walk advances second by second from start toward limit, stopping early
// when the hazard fires. The returned end is always > start and <= limit.
func walk(r *rand.Rand, start, limit, duration int, hz func(sec, duration int) float64) int {
	end := start + 1
	for sec := start + 1; sec < limit; sec++ {
		if r.Float64() < hz(sec, duration) {
			break
		}
		end = sec + 1
	}
	return end
}

// Sample produces the presence intervals for one session of the given
// archetype over a video of durationSec seconds. The result is always a
// non-empty, sorted, non-overlapping set with 0 <= start < end <= duration.
func Sample(r *rand.Rand, durationSec int, a Archetype) []Interval {
	if durationSec < 2 {
		return []Interval{{StartSec: 0, EndSec: 1}}
	}
	switch a {
	case Binge:
		return []Interval{sampleBinge(r, durationSec)}
	case Skipper:
		return sampleSkipper(r, durationSec)
	case Completer:
		return []Interval{sampleCompleter(r, durationSec)}
	default:
		return []Interval{sampleCasual(r, durationSec)}
	}
}

// sampleCasual watches a short stretch from a random offset and is fully
// exposed to the baseline hazard, so early abandons dominate.
func sampleCasual(r *rand.Rand, duration int) Interval {
	maxWatch := duration * 3 / 10
	if maxWatch < 5 {
		maxWatch = 5
	}
	watch := 5 + r.Intn(maxWatch)
	if watch >= duration {
		watch = duration - 1
	}
	if watch < 1 {
		watch = 1
	}
	start := r.Intn(duration - watch)
	end := walk(r, start, start+watch, duration, hazard)
	return clamp(Interval{StartSec: start, EndSec: end}, duration)
}

// sampleBinge starts at zero and barely drops until the final quarter,
// where the abandon-before-credits hazard kicks in.
func sampleBinge(r *rand.Rand, duration int) Interval {
	target := duration*6/10 + r.Intn(duration*4/10+1)
	end := walk(r, 0, target, duration, func(sec, dur int) float64 {
		if float64(sec)/float64(dur) < 0.75 {
			return 0.0005
		}
		return 0.10
	})
	return clamp(Interval{StartSec: 0, EndSec: end}, duration)
}

// sampleCompleter overrides the end-of-video hazard entirely: near-zero
// dropoff until the last few seconds, usually reaching the final second.
func sampleCompleter(r *rand.Rand, duration int) Interval {
	end := duration - r.Intn(min(3, duration))
	end = walk(r, 0, end, duration, func(sec, dur int) float64 {
		return 0.0001
	})
	return clamp(Interval{StartSec: 0, EndSec: end}, duration)
}

// sampleSkipper produces several short, disjoint bursts of presence at
// sorted random positions.
func sampleSkipper(r *rand.Rand, duration int) []Interval {
	n := duration / 10
	if n > 5 {
		n = 5
	}
	if n < 1 {
		n = 1
	}
	positions := r.Perm(duration)[:n]
	sort.Ints(positions)

	var out []Interval
	cursor := 0
	for _, pos := range positions {
		if pos < cursor {
			pos = cursor
		}
		if pos >= duration {
			break
		}
		burst := 3 + r.Intn(13)
		end := pos + burst
		if end > duration {
			end = duration
		}
		if end <= pos {
			continue
		}
		out = append(out, Interval{StartSec: pos, EndSec: end})
		cursor = end + 1
	}
	if len(out) == 0 {
		out = append(out, clamp(Interval{StartSec: 0, EndSec: 4}, duration))
	}
	return out
}

func clamp(iv Interval, duration int) Interval {
	if iv.StartSec < 0 {
		iv.StartSec = 0
	}
	if iv.EndSec > duration {
		iv.EndSec = duration
	}
	if iv.EndSec <= iv.StartSec {
		iv.EndSec = iv.StartSec + 1
	}
	if iv.EndSec > duration {
		iv.StartSec = duration - 1
		iv.EndSec = duration
	}
	return iv
}

