// Package store persists aggregate onboarding answer counts to a small
// JSON file, read in full and rewritten in full on every increment.
package store

import (
	"fmt"
	"strings"
	"sync"

	"mew/greeter/internal/state"
)

// StarterLabels seed a fresh store so the chart never starts empty.
var StarterLabels = []string{"Friend Invite", "Social Media", "Server Search"}

type countsFile struct {
	Choices map[string]int `json:"choices"`
}

// Counts is the label→count store. Single process, single writer; the
// file is the only durability this bot has.
type Counts struct {
	mu     sync.Mutex
	path   string
	counts map[string]int
}

// Open loads the store from path, seeding and persisting the starter
// labels when no file exists yet.
func Open(path string) (*Counts, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}

	seed := !state.Exists(path)

	loaded, err := state.LoadJSONFile[countsFile](path)
	if err != nil {
		return nil, fmt.Errorf("load counts: %w", err)
	}
	if loaded.Choices == nil {
		loaded.Choices = map[string]int{}
	}

	c := &Counts{path: path, counts: loaded.Choices}

	if seed {
		for _, label := range StarterLabels {
			c.counts[label] = 0
		}
		if err := c.save(); err != nil {
			return nil, fmt.Errorf("seed counts: %w", err)
		}
	}
	return c, nil
}

// Increment bumps a label and rewrites the file. When persistence fails
// the in-memory count keeps the bump and the error is returned for the
// caller to log; the flow is not aborted.
func (c *Counts) Increment(label string) (int, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return 0, fmt.Errorf("label is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[label]++
	n := c.counts[label]

	if err := c.save(); err != nil {
		return n, fmt.Errorf("persist counts: %w", err)
	}
	return n, nil
}

// Snapshot returns a copy of the current mapping.
func (c *Counts) Snapshot() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

func (c *Counts) save() error {
	return state.SaveJSONFile(c.path, countsFile{Choices: c.counts})
}
