// Package bank serves content from a curated YAML question bank.
package bank

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/quizduel/go/internal/content"
	"github.com/mcdev12/quizduel/go/internal/models"
)

// Entry is a bank item with its grading.
type Entry struct {
	models.Item `yaml:",inline"`
	Difficulty  models.Difficulty `yaml:"difficulty"`
	Topic       string            `yaml:"topic"`
}

// File is the on-disk layout of a bank.
type File struct {
	Items   []Entry         `yaml:"items"`
	Puzzles []models.Puzzle `yaml:"puzzles"`
}

// Bank is a content.Pipeline backed by a fixed set of items.
type Bank struct {
	file File

	mu  sync.Mutex
	rng *rand.Rand
}

// Parse decodes a bank from YAML.
func Parse(data []byte, seed uint64) (*Bank, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse bank: %w", err)
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("bank has no items")
	}
	if len(f.Puzzles) == 0 {
		return nil, fmt.Errorf("bank has no puzzles")
	}
	return &Bank{file: f, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}, nil
}

// Load reads a bank file.
func Load(path string, seed uint64) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bank file: %w", err)
	}
	return Parse(data, seed)
}

// Factory opens the bank named by cfg["path"].
func Factory(cfg map[string]string) (content.Pipeline, error) {
	path := cfg["path"]
	if path == "" {
		return nil, fmt.Errorf("bank source needs a path")
	}
	return Load(path, rand.Uint64())
}

// File returns the parsed bank.
func (b *Bank) File() File {
	return b.file
}

// GenerateRoundItems draws count unused items, preferring the requested
// difficulty and falling back to any difficulty.
func (b *Bank) GenerateRoundItems(_ context.Context, spec content.RoundSpec, count int) ([]models.Item, error) {
	var preferred, rest []models.Item
	for _, e := range b.file.Items {
		if slices.Contains(spec.Exclude, e.Question) {
			continue
		}
		if e.Difficulty == spec.Difficulty {
			preferred = append(preferred, e.Item)
		} else {
			rest = append(rest, e.Item)
		}
	}

	b.mu.Lock()
	b.rng.Shuffle(len(preferred), func(i, j int) { preferred[i], preferred[j] = preferred[j], preferred[i] })
	b.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	b.mu.Unlock()

	pool := append(preferred, rest...)
	if len(pool) < count {
		return nil, fmt.Errorf("bank exhausted: %d items left, need %d", len(pool), count)
	}
	return pool[:count], nil
}

// VerifyItems approves items that meet the contract and have at least one
// distractor to show.
func (b *Bank) VerifyItems(_ context.Context, items []models.Item) (content.Verification, error) {
	var v content.Verification
	for _, it := range items {
		if content.ValidateItem(it) != nil || len(it.Choices(models.DifficultyMedium)) < 2 {
			v.Rejected = append(v.Rejected, it)
			continue
		}
		v.Approved = append(v.Approved, it)
	}
	return v, nil
}

// GeneratePuzzle picks a puzzle at random.
func (b *Bank) GeneratePuzzle(context.Context, content.PuzzleSpec) (*models.Puzzle, error) {
	b.mu.Lock()
	p := b.file.Puzzles[b.rng.IntN(len(b.file.Puzzles))]
	b.mu.Unlock()
	return &p, nil
}

// Check reports every bank entry that breaks the content contract.
func (b *Bank) Check() []error {
	var errs []error
	seen := make(map[string]bool)
	for i, e := range b.file.Items {
		if err := content.ValidateItem(e.Item); err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
		}
		if seen[e.Question] {
			errs = append(errs, fmt.Errorf("item %d: duplicate question %q", i, e.Question))
		}
		seen[e.Question] = true
		switch e.Difficulty {
		case models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard:
		default:
			errs = append(errs, fmt.Errorf("item %d: unknown difficulty %q", i, e.Difficulty))
		}
	}
	for i := range b.file.Puzzles {
		if err := content.ValidatePuzzle(&b.file.Puzzles[i]); err != nil {
			errs = append(errs, fmt.Errorf("puzzle %d: %w", i, err))
		}
	}
	need := 2 * models.ItemsPerRound * models.MaxRounds
	if len(b.file.Items) < need {
		errs = append(errs, fmt.Errorf("bank has %d items, a full session needs %d", len(b.file.Items), need))
	}
	return errs
}
