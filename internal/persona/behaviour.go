// Package persona loads ransomware-group behaviour profiles and builds
// the role-playing system prompts derived from them.
package persona

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPersonaNotFound is returned when no behaviour file exists for a group.
var ErrPersonaNotFound = errors.New("persona not found")

// behaviourSuffix is the file naming convention: <GroupName>_behaviour.txt.
const behaviourSuffix = "_behaviour.txt"

// Behaviour is a categorized bank of example phrases for one group.
// Categories keep file order so prompt output stays deterministic.
type Behaviour struct {
	categories []string
	examples   map[string][]string
}

// Categories returns category names in file order.
func (b *Behaviour) Categories() []string { return b.categories }

// Examples returns the example lines for a category.
func (b *Behaviour) Examples(category string) []string { return b.examples[category] }

// LoadBehaviour parses the behaviour file for group from dir.
//
// The format is line oriented: a line ending in ":" opens a category
// (stored lowercased), and every following non-empty line is an example
// entry with its fixed 2-character bullet prefix stripped.
func LoadBehaviour(dir, group string) (*Behaviour, error) {
	path := filepath.Join(dir, group+behaviourSuffix)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no behaviour file for %q in %s", ErrPersonaNotFound, group, dir)
		}
		return nil, fmt.Errorf("opening behaviour file: %w", err)
	}
	defer f.Close()

	b := &Behaviour{examples: make(map[string][]string)}
	var current string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasSuffix(line, ":"):
			current = strings.ToLower(strings.TrimSuffix(line, ":"))
			if _, seen := b.examples[current]; !seen {
				b.categories = append(b.categories, current)
				b.examples[current] = nil
			}
		case line != "" && current != "":
			// The bullet prefix is always stripped, so a line that is
			// nothing but the prefix contributes no entry.
			if len(line) <= 2 {
				continue
			}
			b.examples[current] = append(b.examples[current], line[2:])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading behaviour file: %w", err)
	}

	return b, nil
}

// Profile describes one available persona.
type Profile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// List returns the personas that have a behaviour file in dir, largest
// file first.
func List(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading behaviour dir: %w", err)
	}

	var profiles []Profile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), behaviourSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		profiles = append(profiles, Profile{
			Name: strings.TrimSuffix(e.Name(), behaviourSuffix),
			Size: info.Size(),
		})
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Size > profiles[j].Size })
	return profiles, nil
}
