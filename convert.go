package labelconv

// The conversion driver.
//
// Conversion is single-threaded and pull-based: the driver advances the input
// sequence one image at a time and hands each element to the output before
// pulling the next, so exactly one ImageLabels (or ImageSegmentations) value
// is live at any point. Peak memory is bounded by the largest single image's
// annotation set plus the category table, not by the dataset size.

// DriverState is the conversion driver's lifecycle state.
type DriverState int

const (
	StateInitialized DriverState = iota
	StateCategoriesResolved
	StateStreaming
	StateDone
	StateFailed
)

func (s DriverState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateCategoriesResolved:
		return "categories-resolved"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Driver orchestrates one Input against one Output. It reads the category
// registry exactly once, hands it frozen to the output, then streams the
// label sequence in lock-step. A failure during streaming leaves the driver
// in StateFailed; partially written output artifacts are not rolled back.
type Driver[L any] struct {
	in    Input[L]
	out   Output[L]
	diag  *Diagnostics
	state DriverState
}

// NewDriver creates a driver for one conversion run. A nil diag discards
// warnings.
func NewDriver[L any](in Input[L], out Output[L], diag *Diagnostics) *Driver[L] {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	return &Driver[L]{in: in, out: out, diag: diag, state: StateInitialized}
}

// State returns the driver's current lifecycle state.
func (d *Driver[L]) State() DriverState { return d.state }

// Run performs the conversion. It can be called at most once; the input's
// label sequence is single-pass.
func (d *Driver[L]) Run() error {
	fail := func(err error) error {
		d.state = StateFailed
		return err
	}

	if d.state != StateInitialized {
		return fail(configErrf("driver already ran (state %s)", d.state))
	}

	// The single Categories call for this run.
	categories := d.in.Categories()
	d.state = StateCategoriesResolved

	if err := d.out.Begin(categories); err != nil {
		return fail(err)
	}

	for label, err := range d.in.Labels() {
		if err != nil {
			return fail(err)
		}
		d.state = StateStreaming
		if err := d.out.Write(label); err != nil {
			return fail(err)
		}
	}

	if err := d.out.Finish(); err != nil {
		return fail(err)
	}

	d.state = StateDone
	d.diag.LogSummary()
	return nil
}

// Convert streams all categories and labels from in to out. It is the
// package-level entry point for one conversion run.
func Convert[L any](in Input[L], out Output[L], diag *Diagnostics) error {
	return NewDriver(in, out, diag).Run()
}
