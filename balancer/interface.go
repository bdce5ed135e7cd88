/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package balancer implements the pluggable backend-selection strategies:
// RoundRobin, Random, LeastLoaded (Peak-EWMA argmin) and Sticky. Strategies operate
// over the minimal Candidate view of a backend so this package never imports the
// concrete backend package, keeping the dependency one-directional.
package balancer

// Candidate is the minimal view of a backend a strategy needs. *backend.Backend
// satisfies this interface.
type Candidate interface {
	ID() string
	Eligible() bool
	IsBackup() bool
	StickyID() string
	Cost() float64
}

// Strategy selects one eligible candidate from a cluster's backend list.
type Strategy interface {
	Name() string
	// Select returns the chosen candidate, or ok=false when none is eligible.
	Select(candidates []Candidate, stickyHint string) (chosen Candidate, ok bool)
}

// partition splits a candidate list into eligible primaries and backups; backups
// are selected only when no primary is eligible.
func partition(candidates []Candidate) (primaries, backups []Candidate) {
	for _, c := range candidates {
		if !c.Eligible() {
			continue
		}

		if c.IsBackup() {
			backups = append(backups, c)
		} else {
			primaries = append(primaries, c)
		}
	}

	return primaries, backups
}

// eligible returns primaries when any exist, else backups (possibly empty).
func eligible(candidates []Candidate) []Candidate {
	primaries, backups := partition(candidates)
	if len(primaries) > 0 {
		return primaries
	}

	return backups
}

// sortedByID returns candidates ordered by ascending backend id, the deterministic
// lexicographic tie-break.
func sortedByID(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID() > out[j].ID(); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}

	return out
}
