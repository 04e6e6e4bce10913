package robots

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"
	"time"
)

// Rules is the parsed outcome of one robots.txt body for a given agent.
type Rules struct {
	Disallow   []string
	CrawlDelay time.Duration
	HasDelay   bool
}

// group accumulates directives for one run of User-agent lines.
type group struct {
	agents   []string
	disallow []string
	delay    time.Duration
	hasDelay bool
}

func (g *group) matches(agent string) (exact bool, wildcard bool) {
	lowered := strings.ToLower(agent)
	for _, a := range g.agents {
		if a == "*" {
			wildcard = true
			continue
		}
		// Product-token match: our agent string contains the group's token.
		if strings.Contains(lowered, a) {
			exact = true
		}
	}
	return exact, wildcard
}

// Parse extracts the Disallow prefixes and optional Crawl-delay that apply
// to agent. Groups naming the agent take precedence over the wildcard
// group; unrecognized directives, comments and blank lines are skipped.
func Parse(body []byte, agent string) Rules {
	var groups []*group
	var current *group
	lastWasAgent := false

	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			if current == nil || !lastWasAgent {
				current = &group{}
				groups = append(groups, current)
			}
			current.agents = append(current.agents, strings.ToLower(value))
			lastWasAgent = true
		case "disallow":
			if current == nil {
				continue
			}
			lastWasAgent = false
			if value != "" {
				current.disallow = append(current.disallow, value)
			}
		case "crawl-delay":
			if current == nil {
				continue
			}
			lastWasAgent = false
			if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
				current.delay = time.Duration(secs*1000) * time.Millisecond
				current.hasDelay = true
			}
		default:
			lastWasAgent = false
		}
	}

	var named, wild Rules
	var namedFound, wildFound bool
	for _, g := range groups {
		exact, wildcard := g.matches(agent)
		if exact {
			namedFound = true
			named.Disallow = append(named.Disallow, g.disallow...)
			if g.hasDelay {
				named.CrawlDelay = g.delay
				named.HasDelay = true
			}
		}
		if wildcard {
			wildFound = true
			wild.Disallow = append(wild.Disallow, g.disallow...)
			if g.hasDelay {
				wild.CrawlDelay = g.delay
				wild.HasDelay = true
			}
		}
	}
	if namedFound {
		return named
	}
	if wildFound {
		return wild
	}
	return Rules{}
}

// Allows reports whether path escapes every collected disallow prefix.
func (r Rules) Allows(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, prefix := range r.Disallow {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}
