package app

import (
	"math"
	"time"
)

// Score converts a correct answer into points. Half the question's marks are
// awarded for correctness alone; the other half is a speed bonus that decays
// linearly to zero across the time limit. An instantaneous answer is worth the
// full marks, an answer at exactly the limit is worth round(marks/2).
func Score(marks int, timeTaken, timeLimit time.Duration) int {
	if timeLimit <= 0 {
		return marks
	}
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken > timeLimit {
		timeTaken = timeLimit
	}
	base := float64(marks) / 2
	bonus := base * (1 - float64(timeTaken)/float64(timeLimit))
	return int(math.Round(base + bonus))
}
