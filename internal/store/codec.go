package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/cartstore/internal/cart"
)

var ErrCorruptBlob = errors.New("corrupt cart blob")

// persistedCart is the stored shape. Aggregates are not stored:
// they are recomputed from lines on every load.
type persistedCart struct {
	Lines []cart.Line `json:"lines"`
}

// Encode serializes the lines of c.
func Encode(c cart.Cart) ([]byte, error) {
	lines := c.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	blob, err := json.Marshal(persistedCart{Lines: lines})
	if err != nil {
		return nil, fmt.Errorf("marshal cart failed: %w", err)
	}
	return blob, nil
}

// Decode rebuilds a cart from a stored blob. Unknown fields, including any
// stale totals, are ignored. A blob that is not a JSON object with a lines
// array yields ErrCorruptBlob.
func Decode(blob []byte) (cart.Cart, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(blob, &raw); err != nil {
		return cart.Empty(), fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	linesJSON, ok := raw["lines"]
	if !ok {
		return cart.Empty(), fmt.Errorf("%w: missing lines", ErrCorruptBlob)
	}

	var lines []cart.Line
	if err := json.Unmarshal(linesJSON, &lines); err != nil {
		return cart.Empty(), fmt.Errorf("%w: %v", ErrCorruptBlob, err)
	}
	return cart.New(lines), nil
}
