package session

import (
	"strings"
	"sync"
)

const (
	levelSeparator    = "/"
	singleLevelToken  = "*"
	remainingWildcard = ">"
)

// Matcher is a compiled topic pattern.
type Matcher struct {
	levels []string
}

// CompilePattern compiles a glob-style topic pattern into a reusable
// Matcher. Pattern syntax:
//
//	'*' matches exactly one hierarchy level
//	'>' matches all remaining levels (only as the final token)
//
// Any other character matches literally.
func CompilePattern(pattern string) Matcher {
	return Matcher{levels: strings.Split(pattern, levelSeparator)}
}

// Match reports whether the full topic string matches the compiled pattern.
func (m Matcher) Match(topic string) bool {
	topicLevels := strings.Split(topic, levelSeparator)

	for i, level := range m.levels {
		// '>' consumes everything from here to the end, but only as the
		// final token and only if at least one topic level remains.
		if level == remainingWildcard && i == len(m.levels)-1 {
			return i < len(topicLevels)
		}

		if i >= len(topicLevels) {
			return false
		}

		if level == singleLevelToken {
			continue
		}

		if level != topicLevels[i] {
			return false
		}
	}

	return len(m.levels) == len(topicLevels)
}

// TopicMatcher gates inbound delivery on a configurable set of ignore
// patterns. A zero TopicMatcher ignores nothing.
type TopicMatcher struct {
	mu       sync.RWMutex
	matchers []Matcher
}

// SetIgnorePatterns compiles and installs the ignore patterns, replacing any
// previous set.
func (t *TopicMatcher) SetIgnorePatterns(patterns []string) {
	matchers := make([]Matcher, 0, len(patterns))
	for _, p := range patterns {
		matchers = append(matchers, CompilePattern(p))
	}
	t.mu.Lock()
	t.matchers = matchers
	t.mu.Unlock()
}

// ShouldIgnore reports whether any configured pattern matches the topic.
// With no patterns configured it returns false without any matching cost.
func (t *TopicMatcher) ShouldIgnore(topic string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.matchers) == 0 {
		return false
	}
	for _, m := range t.matchers {
		if m.Match(topic) {
			return true
		}
	}
	return false
}
