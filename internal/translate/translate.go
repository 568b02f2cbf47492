// Package translate converts programme text between Chinese scripts.
package translate

import (
	"fmt"

	"github.com/liuzl/gocc"
)

// Translator rewrites one guide text field. Implementations are called
// sequentially from the filter pass and need not be goroutine-safe.
type Translator interface {
	Translate(s string) (string, error)
}

// New returns a converter for mode "t2s" (traditional to simplified) or
// "s2t". Mode "" or "off" yields a nil Translator, meaning no translation.
func New(mode string) (Translator, error) {
	switch mode {
	case "", "off":
		return nil, nil
	case "t2s", "s2t":
		cc, err := gocc.New(mode)
		if err != nil {
			return nil, fmt.Errorf("translate: init %s: %w", mode, err)
		}
		return &converter{cc: cc}, nil
	default:
		return nil, fmt.Errorf("translate: unknown mode %q", mode)
	}
}

type converter struct {
	cc *gocc.OpenCC
}

func (c *converter) Translate(s string) (string, error) {
	out, err := c.cc.Convert(s)
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	return out, nil
}
