package efw

import "fmt"

// Status is the status field of a response frame. Values outside the
// known set are normalised to StatusInvalid when a frame is decoded.
type Status uint32

const (
	StatusOk           Status = 0
	StatusBad          Status = 1
	StatusBadCommand   Status = 2
	StatusCommErr      Status = 3
	StatusBadQuadCount Status = 4
	StatusUnsupported  Status = 5
	StatusTimeout      Status = 6
	StatusDspTimeout   Status = 7
	StatusBadRate      Status = 8
	StatusBadClock     Status = 9
	StatusBadChannel   Status = 10
	StatusBadPan       Status = 11
	StatusFlashBusy    Status = 12
	StatusBadMirror    Status = 13
	StatusBadLed       Status = 14
	StatusBadParameter Status = 15
	StatusIncomplete   Status = 0x80000000
	StatusInvalid      Status = 0xffffffff
)

var statusLabels = map[Status]string{
	StatusOk:           "The transaction finished successfully",
	StatusBad:          "The request or response includes invalid header",
	StatusBadCommand:   "The request includes invalid category or command",
	StatusCommErr:      "The transaction fails due to communication error",
	StatusBadQuadCount: "The number of quadlets in transaction is invalid",
	StatusUnsupported:  "The request is not supported",
	StatusTimeout:      "The transaction is canceled due to response timeout",
	StatusDspTimeout:   "The operation for DSP did not finish within timeout",
	StatusBadRate:      "The request includes invalid value for sampling frequency",
	StatusBadClock:     "The request includes invalid value for source of clock",
	StatusBadChannel:   "The request includes invalid value for the number of channel",
	StatusBadPan:       "The request includes invalid value for panning",
	StatusFlashBusy:    "The on-board flash is busy and not operable",
	StatusBadMirror:    "The request includes invalid value for mirroring channel",
	StatusBadLed:       "The request includes invalid value for LED",
	StatusBadParameter: "The request includes invalid value of parameter",
	StatusIncomplete:   "The transaction finishes incompletely",
	StatusInvalid:      "The transaction finished with invalid condition",
}

// Known reports whether s belongs to the closed set of statuses.
func (s Status) Known() bool {
	_, ok := statusLabels[s]
	return ok
}

func normalizeStatus(v uint32) Status {
	s := Status(v)
	if !s.Known() {
		return StatusInvalid
	}
	return s
}

// Error lets a non-ok status travel as an error value, so callers can
// match it with errors.Is after wrapping.
func (s Status) Error() string {
	return s.String()
}

func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("status(%#x)", uint32(s))
}
