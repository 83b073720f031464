package mqtt

import "strings"

// queueTopicPrefix maps named queue destinations onto the topic space.
const queueTopicPrefix = "$queue/"

// FilterToMQTT translates a ClearMesh topic filter to MQTT canonical form.
//
//	'*' (one level)        -> '+'
//	'>' (remaining levels) -> '#'
//
// Both translate only as whole level tokens, and '>' only as the final one;
// anywhere else they are literal characters.
func FilterToMQTT(filter string) string {
	if !strings.ContainsAny(filter, "*>") {
		return filter
	}
	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch level {
		case "*":
			levels[i] = "+"
		case ">":
			if i == len(levels)-1 {
				levels[i] = "#"
			}
		}
	}
	return strings.Join(levels, "/")
}

// queueTopic returns the topic a named queue's messages travel on.
func queueTopic(name string) string {
	return queueTopicPrefix + name
}
