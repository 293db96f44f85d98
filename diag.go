package labelconv

// Run-scoped warning accumulation. A Diagnostics value is created per
// conversion run and passed to the codec constructors; there is no
// process-wide mutable logging state.

import (
	"go.uber.org/zap"
)

// Diagnostics collects recoverable warnings for one conversion run. Skipped
// images and lines are counted so they can be surfaced as a summary at the
// end of the run instead of disappearing into interleaved log output.
//
// The conversion pipeline is single-threaded, so Diagnostics does no locking.
type Diagnostics struct {
	log           *zap.Logger
	skippedImages int
	skippedLines  int
	warnings      int
}

// NewDiagnostics returns a collector logging through log. A nil log discards
// the messages but still counts them.
func NewDiagnostics(log *zap.Logger) *Diagnostics {
	if log == nil {
		log = zap.NewNop()
	}
	return &Diagnostics{log: log}
}

// SkipImage records that an image and all of its annotations were skipped.
func (d *Diagnostics) SkipImage(filename string, err error) {
	d.skippedImages++
	d.warnings++
	d.log.Warn("skipping image", zap.String("image", filename), zap.Error(err))
}

// SkipLine records that a single label line (or annotation) was skipped while
// the rest of its file was converted.
func (d *Diagnostics) SkipLine(path string, line int, err error) {
	d.skippedLines++
	d.warnings++
	d.log.Warn("skipping label line",
		zap.String("file", path), zap.Int("line", line), zap.Error(err))
}

// Warnf records a recoverable condition that is neither a skipped image nor a
// skipped line.
func (d *Diagnostics) Warnf(format string, args ...interface{}) {
	d.warnings++
	d.log.Sugar().Warnf(format, args...)
}

// SkippedImages is the number of images skipped so far.
func (d *Diagnostics) SkippedImages() int { return d.skippedImages }

// SkippedLines is the number of label lines skipped so far.
func (d *Diagnostics) SkippedLines() int { return d.skippedLines }

// Warnings is the total number of warnings recorded so far.
func (d *Diagnostics) Warnings() int { return d.warnings }

// LogSummary emits the end-of-run warning summary.
func (d *Diagnostics) LogSummary() {
	d.log.Info("conversion finished",
		zap.Int("skipped_images", d.skippedImages),
		zap.Int("skipped_lines", d.skippedLines),
		zap.Int("warnings", d.warnings))
}
