package processing

// Threshold debounces the below-threshold status of a distance stream. After
// the raw comparison changes, the status follows it once Delay further
// readings agree.
type Threshold struct {
	Limit int // mm; a distance strictly below Limit is "below"
	Delay int // consistent readings required before the status flips

	status      bool
	previous    bool
	consistency int
}

// NewThreshold returns a debouncer with status "not below".
func NewThreshold(limit, delay int) *Threshold {
	return &Threshold{Limit: limit, Delay: delay}
}

// Update feeds one distance and returns the debounced status and whether it
// changed on this reading.
func (t *Threshold) Update(distance int) (below, event bool) {
	current := distance < t.Limit
	if current == t.previous {
		t.consistency++
	} else {
		t.consistency = 0
	}
	t.previous = current

	if t.consistency >= t.Delay && t.status != current {
		t.status = current
		return t.status, true
	}
	return t.status, false
}

// Below returns the current debounced status.
func (t *Threshold) Below() bool { return t.status }

// Reconfigure changes limit and delay, keeping the current status.
func (t *Threshold) Reconfigure(limit, delay int) {
	t.Limit = limit
	t.Delay = delay
	t.consistency = 0
}
