// Package sheets defines the spreadsheet port exports are appended to.
package sheets

import (
	"context"
	"errors"
)

var ErrEmptySheet = errors.New("empty sheet name")

// RowAppender appends rows to the end of a named sheet.
type RowAppender interface {
	AppendRows(ctx context.Context, sheet string, rows [][]string) error
}
