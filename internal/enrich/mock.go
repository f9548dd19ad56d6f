package enrich

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Mock is a deterministic enricher for tests and dry runs. Its result
// depends only on the function's name and source length.
type Mock struct{}

// Enrich returns "<name> is a great function and has size of <n>", where n
// is the number of characters in the source.
func (Mock) Enrich(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is a great function and has size of %d", req.Name, utf8.RuneCountInString(req.Source)), nil
}
