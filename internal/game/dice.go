package game

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"
)

// diceRe matches NdS with an optional +M/-M modifier, e.g. "2d6+1".
var diceRe = regexp.MustCompile(`^(\d*)d(\d+)([+-]\d+)?$`)

// Roll is the outcome of one dice expression.
type Roll struct {
	Notation string `json:"notation"`
	Dice     []int  `json:"dice"`
	Modifier int    `json:"modifier"`
	Total    int    `json:"total"`
}

// Roller rolls dice from a single rand source. Seeded rollers are
// deterministic, which the tests and replayable sessions rely on.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller creates a roller. A zero seed draws one from the clock.
func NewRoller(seed int64) *Roller {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll evaluates dice notation like "d20", "2d6" or "3d8-2".
func (r *Roller) Roll(notation string) (*Roll, error) {
	m := diceRe.FindStringSubmatch(notation)
	if m == nil {
		return nil, fmt.Errorf("bad dice notation %q", notation)
	}

	count := 1
	if m[1] != "" {
		count, _ = strconv.Atoi(m[1])
	}
	sides, _ := strconv.Atoi(m[2])
	mod := 0
	if m[3] != "" {
		mod, _ = strconv.Atoi(m[3])
	}
	if count < 1 || count > 100 || sides < 2 {
		return nil, fmt.Errorf("dice out of range: %q", notation)
	}

	roll := &Roll{Notation: notation, Modifier: mod, Total: mod}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < count; i++ {
		v := r.rng.Intn(sides) + 1
		roll.Dice = append(roll.Dice, v)
		roll.Total += v
	}
	return roll, nil
}

// Check rolls 2d10 plus an attribute against a difficulty. Returns the
// roll and whether it met the mark.
func (r *Roller) Check(attribute, difficulty int) (*Roll, bool, error) {
	roll, err := r.Roll(fmt.Sprintf("2d10%+d", attribute))
	if err != nil {
		return nil, false, err
	}
	return roll, roll.Total >= difficulty, nil
}
