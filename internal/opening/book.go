// Package opening tags games with a name and ECO code by matching the
// played UCI moves against a small embedded book.
package opening

import (
	_ "embed"
	"fmt"
	"sync"

	yaml "gopkg.in/yaml.v2"
)

//go:embed book.yaml
var bookYAML []byte

// Opening is one book entry.
type Opening struct {
	ECO  string   `yaml:"eco" json:"eco"`
	Name string   `yaml:"name" json:"name"`
	UCI  []string `yaml:"uci" json:"uci"`
}

var (
	loadOnce sync.Once
	book     []Opening
	loadErr  error
)

func entries() []Opening {
	loadOnce.Do(func() {
		var doc struct {
			Openings []Opening `yaml:"openings"`
		}
		if err := yaml.Unmarshal(bookYAML, &doc); err != nil {
			loadErr = fmt.Errorf("parse opening book: %w", err)
			return
		}
		book = doc.Openings
	})
	return book
}

// Detect returns the longest book line consistent with the played
// moves, or nil when nothing matches. A game still inside a book line
// matches that line; once it diverges the line is out.
func Detect(moves []string) *Opening {
	if len(moves) == 0 {
		return nil
	}
	var best *Opening
	for i := range entries() {
		entry := &entries()[i]
		n := len(entry.UCI)
		if len(moves) < n {
			n = len(moves)
		}
		match := true
		for j := 0; j < n; j++ {
			if moves[j] != entry.UCI[j] {
				match = false
				break
			}
		}
		if match && (best == nil || len(entry.UCI) > len(best.UCI)) {
			best = entry
		}
	}
	return best
}
