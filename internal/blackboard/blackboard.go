// Package blackboard is a small run-mode scenario: the model spells a word on a shared
// board one letter at a time and ends the run by calling done.
package blackboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/skosovsky/shapely"
)

// Task is the run-mode prompt. $word is substituted by the client.
const Task = "Spell the word $word on the blackboard, writing one letter per call. " +
	"Call done once the word is complete."

// ErrNotALetter is returned when the model writes anything but a single letter.
var ErrNotALetter = errors.New("must be a single letter")

type letterArgs struct {
	Letter string `json:"letter" jsonschema_description:"exactly one letter"`
}

func (a letterArgs) Validate() error {
	r, n := utf8.DecodeRuneInString(a.Letter)
	if n == 0 || n != len(a.Letter) || !unicode.IsLetter(r) {
		return ErrNotALetter
	}
	return nil
}

type doneArgs struct {
	Comment string `json:"comment" jsonschema_description:"anything worth saying about the result"`
}

// Board collects written letters. Safe for concurrent use.
type Board struct {
	mu      sync.Mutex
	letters []string
}

// String returns the letters written so far.
func (b *Board) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.letters, "")
}

func (b *Board) write(l string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.letters = append(b.letters, strings.ToUpper(l))
	return strings.Join(b.letters, "")
}

func (b *Board) erase() {
	b.mu.Lock()
	b.letters = nil
	b.mu.Unlock()
}

// Capabilities returns write, erase and done bound to b. Erasing forces the next call to be
// a write and writing lifts that constraint again; done interrupts the run with the board contents.
func (b *Board) Capabilities() ([]*shapely.Capability, error) {
	write, err := shapely.NewCapability("write", "Write one letter at the end of the blackboard.",
		func(_ context.Context, args letterArgs) (shapely.Outcome, error) {
			auto := shapely.Auto()
			return shapely.Outcome{Result: "blackboard: " + b.write(args.Letter), Patch: shapely.Patch{ForcedCall: &auto}}, nil
		})
	if err != nil {
		return nil, err
	}
	erase, err := shapely.NewDynamicCapability("erase", "Wipe the blackboard clean.", shapely.Template(),
		func(context.Context, any) (any, error) {
			b.erase()
			next := shapely.Force("write")
			return shapely.Outcome{Result: "blackboard is empty", Patch: shapely.Patch{ForcedCall: &next}}, nil
		})
	if err != nil {
		return nil, err
	}
	done, err := shapely.NewCapability("done", "Finish once the word is on the blackboard.",
		func(_ context.Context, _ doneArgs) (shapely.Outcome, error) {
			return shapely.Outcome{Result: b.String(), Patch: shapely.Patch{Interrupt: true}}, nil
		})
	if err != nil {
		return nil, err
	}
	return []*shapely.Capability{write, erase, done}, nil
}

// Spell runs the scenario for word and returns what ended up on the board.
func Spell(ctx context.Context, client *shapely.Client, word string) (string, error) {
	var board Board
	caps, err := board.Capabilities()
	if err != nil {
		return "", err
	}
	v, err := client.Run(ctx, Task, map[string]any{"word": word}, caps)
	if err != nil {
		return board.String(), err
	}
	s, _ := v.(string)
	return s, nil
}
