// Package progress wraps progress bars shared by long-running stages.
package progress

import (
	"fmt"
	"io"
	"log"

	"github.com/schollz/progressbar/v3"
)

// New creates a counting bar of n steps writing to w. A nil writer yields
// a nil bar, which Add ignores.
func New(w io.Writer, n int, description string) *progressbar.ProgressBar {
	if w == nil || n <= 0 {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(0),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
}

// Add increments the progress bar while safely handling errors.
func Add(bar *progressbar.ProgressBar, n int) {
	if bar == nil || n == 0 {
		return
	}

	if err := bar.Add(n); err != nil {
		log.Printf("failed to update progress bar: %v", err)
	}
}
