package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mcdev12/quizduel/go/internal/content/bank"
	"github.com/mcdev12/quizduel/go/internal/models"
)

func main() {
	path := flag.String("bank", "go/internal/assets/bank.yaml", "question bank to check")
	flag.Parse()

	// 1) Load the bank
	b, err := bank.Load(*path, 1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load bank: %v\n", err)
		os.Exit(1)
	}
	file := b.File()

	// 2) Count entries per difficulty
	counts := make(map[models.Difficulty]int)
	topics := make(map[string]int)
	for _, e := range file.Items {
		counts[e.Difficulty]++
		topics[e.Topic]++
	}

	// 3) Report contract problems
	problems := b.Check()
	for _, err := range problems {
		fmt.Fprintf(os.Stderr, "  ✗ %v\n", err)
	}

	fmt.Printf(
		"Checked %d items (%d easy, %d medium, %d hard) across %d topics and %d puzzles: %d problems\n",
		len(file.Items),
		counts[models.DifficultyEasy], counts[models.DifficultyMedium], counts[models.DifficultyHard],
		len(topics), len(file.Puzzles), len(problems),
	)

	// A session needs MaxRounds rounds of items for both seats.
	if need := 2 * models.MaxRounds * models.ItemsPerRound; len(file.Items) < need {
		fmt.Fprintf(os.Stderr, "bank has %d items, a full session needs %d\n", len(file.Items), need)
		os.Exit(1)
	}
	if len(problems) > 0 {
		os.Exit(1)
	}
}
