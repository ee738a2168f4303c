package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numberRe matches the first signed decimal number in a model answer.
var numberRe = regexp.MustCompile(`-?\d*\.?\d+`)

// SleepScorePrompt builds the prompt sent to hosted models.
func SleepScorePrompt(description string) string {
	var sb strings.Builder
	sb.WriteString("You rate how someone has been sleeping so a sleep aid dose can be adjusted.\n\n")
	sb.WriteString("Return a score between -1 and 1:\n")
	sb.WriteString("- from -1 to 0 when the description shows good sleep (the dose should go down)\n")
	sb.WriteString("- from 0 to 1 when the description shows poor sleep (the dose should go up)\n\n")
	sb.WriteString("Weigh sleep duration and quality, stress, physical activity, disturbances during the night, and general well-being.\n\n")
	sb.WriteString(fmt.Sprintf("Description: %q\n\n", description))
	sb.WriteString("Answer with one number between -1 and 1 and nothing else, for example 0.4 or -0.2.")
	return sb.String()
}

// ParseScore extracts the first number from a model answer and clamps it to
// [-1, 1]. Answers without a number fail with ErrUnparsableScore.
func ParseScore(response string) (float64, error) {
	match := numberRe.FindString(strings.TrimSpace(response))
	if match == "" {
		return 0, fmt.Errorf("%w: %q", ErrUnparsableScore, truncate(response, 80))
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnparsableScore, err)
	}
	return clampScore(score), nil
}

func clampScore(score float64) float64 {
	if score < -1 {
		return -1
	}
	if score > 1 {
		return 1
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
