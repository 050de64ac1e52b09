// Package skills loads the capability catalog: one directory per skill,
// each holding a SKILL.md with YAML frontmatter followed by instructions.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get for an unknown skill id.
var ErrNotFound = errors.New("skill not found")

const fileName = "SKILL.md"

// Skill is one catalog entry. Body is withheld from the prompt and only
// returned on request.
type Skill struct {
	ID          string `yaml:"-"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Body        string `yaml:"-"`
	Path        string `yaml:"-"`
}

// Catalog is an immutable, id-sorted set of skills.
type Catalog struct {
	skills []Skill
	byID   map[string]int
}

// Load scans dir for */SKILL.md. A missing dir yields an empty catalog.
func Load(dir string) (*Catalog, error) {
	c := &Catalog{byID: map[string]int{}}
	if dir == "" {
		return c, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read skills dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name(), fileName)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		skill, err := Parse(entry.Name(), data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		skill.Path = path
		c.skills = append(c.skills, skill)
	}

	sort.Slice(c.skills, func(i, j int) bool { return c.skills[i].ID < c.skills[j].ID })
	for i, s := range c.skills {
		c.byID[s.ID] = i
	}
	return c, nil
}

// Parse reads one SKILL.md. Without frontmatter the first non-empty line
// becomes the description and the whole file is the body.
func Parse(id string, data []byte) (Skill, error) {
	content := strings.TrimSpace(strings.ReplaceAll(string(data), "\r\n", "\n"))
	skill := Skill{ID: id}

	if strings.HasPrefix(content, "---") {
		rest := content[3:]
		idx := strings.Index(rest, "\n---")
		if idx < 0 {
			return Skill{}, fmt.Errorf("no closing frontmatter delimiter")
		}
		if err := yaml.Unmarshal([]byte(rest[:idx]), &skill); err != nil {
			return Skill{}, fmt.Errorf("parse yaml: %w", err)
		}
		content = strings.TrimSpace(strings.TrimPrefix(rest[idx+len("\n---"):], "-"))
	} else {
		for _, line := range strings.Split(content, "\n") {
			if line = strings.TrimSpace(strings.TrimLeft(line, "# ")); line != "" {
				skill.Description = line
				break
			}
		}
	}

	if skill.Name == "" {
		skill.Name = id
	}
	skill.Description = strings.TrimSpace(skill.Description)
	skill.Body = content
	return skill, nil
}

// List returns every skill sorted by id.
func (c *Catalog) List() []Skill {
	if c == nil {
		return nil
	}
	out := make([]Skill, len(c.skills))
	copy(out, c.skills)
	return out
}

// Get returns the skill with the given id.
func (c *Catalog) Get(id string) (Skill, error) {
	if c != nil {
		if i, ok := c.byID[id]; ok {
			return c.skills[i], nil
		}
	}
	return Skill{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Len reports the number of skills.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.skills)
}
