// Package question holds the built-in interview question bank. It backs the
// database bank when that is short or unreachable, and seeds it.
package question

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ErrNotEnough is returned when a pool cannot supply the requested count.
var ErrNotEnough = errors.New("not enough questions")

// GeneralTopic entries are used for any topic without enough of its own.
const GeneralTopic = "general"

type Entry struct {
	Topic      string
	Difficulty string
	Text       string
}

var bank = []Entry{
	{"go", "easy", "What is the difference between a slice and an array in Go?"},
	{"go", "easy", "How does Go report errors, and how do you wrap one with context?"},
	{"go", "easy", "What does the defer statement do, and in what order do deferred calls run?"},
	{"go", "easy", "When would you use a pointer receiver instead of a value receiver?"},
	{"go", "medium", "How would you stop a group of goroutines cleanly when a request is cancelled?"},
	{"go", "medium", "Explain how interfaces are satisfied in Go and why that matters for testing."},
	{"go", "medium", "What happens when you send on a closed channel, and how do you avoid it?"},
	{"go", "medium", "How would you find and fix a data race reported by the race detector?"},
	{"go", "medium", "Describe how you would bound the number of concurrent workers processing a queue."},
	{"go", "hard", "How does the Go scheduler multiplex goroutines onto operating system threads?"},
	{"go", "hard", "Walk me through how you would profile and reduce allocations in a hot path."},
	{"go", "hard", "How would you design a cache that is safe for concurrent use and evicts old entries?"},
	{"go", "hard", "Explain the memory model guarantees that make a sync.Once safe."},

	{"system design", "easy", "What is a load balancer and why would you put one in front of a service?"},
	{"system design", "easy", "What is the difference between horizontal and vertical scaling?"},
	{"system design", "medium", "How would you design a URL shortener that handles heavy read traffic?"},
	{"system design", "medium", "When would you introduce a message queue between two services?"},
	{"system design", "medium", "How would you make a write API idempotent?"},
	{"system design", "hard", "How would you design a rate limiter shared by many instances of a service?"},
	{"system design", "hard", "How would you migrate a large table to a new schema without downtime?"},
	{"system design", "hard", "Design a notification system that delivers each message at least once."},

	{GeneralTopic, "easy", "Tell me about a project you are proud of and your role in it."},
	{GeneralTopic, "easy", "How do you approach learning a new codebase?"},
	{GeneralTopic, "easy", "Describe how you usually test your own changes."},
	{GeneralTopic, "medium", "Tell me about a bug that took you a long time to find. How did you find it?"},
	{GeneralTopic, "medium", "Describe a time you disagreed with a technical decision. What did you do?"},
	{GeneralTopic, "medium", "How do you decide when code is good enough to ship?"},
	{GeneralTopic, "hard", "Tell me about a production incident you handled and what changed afterwards."},
	{GeneralTopic, "hard", "How would you split a large legacy module into smaller services?"},
	{GeneralTopic, "hard", "Describe a trade-off you made between delivery speed and long-term quality."},
}

// All returns a copy of the whole bank.
func All() []Entry {
	return append([]Entry(nil), bank...)
}

// Pools returns the texts for topic and difficulty, and the general questions
// of the same difficulty. Matching is case-insensitive.
func Pools(topic, difficulty string) (own, general []string) {
	topic = normalize(topic)
	difficulty = normalize(difficulty)

	for _, e := range bank {
		if e.Difficulty != difficulty {
			continue
		}
		switch {
		case e.Topic == topic:
			own = append(own, e.Text)
		case e.Topic == GeneralTopic:
			general = append(general, e.Text)
		}
	}
	return own, general
}

// Sample picks count distinct questions. Pools are drained in order, each one
// in random order, so a later pool only tops up what the earlier ones lack.
func Sample(r *rand.Rand, count int, pools ...[]string) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	picked := make([]string, 0, count)
	for _, pool := range pools {
		shuffled := append([]string(nil), pool...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		for _, q := range shuffled {
			key := normalize(q)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			picked = append(picked, q)
			if len(picked) == count {
				return picked, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnough, count, len(picked))
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
