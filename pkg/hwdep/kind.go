package hwdep

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownKind = errors.New("unknown unit kind")

// Kind is the type of sound unit reported by the GET_INFO ioctl.
type Kind int32

const (
	KindDice Kind = iota + 1
	KindFireworks
	KindBebob
	KindOxfw
	KindDigi00x
	KindTascam
	KindMotu
	KindFireface
)

var kindNames = map[Kind]string{
	KindDice:      "dice",
	KindFireworks: "fireworks",
	KindBebob:     "bebob",
	KindOxfw:      "oxfw",
	KindDigi00x:   "digi00x",
	KindTascam:    "tascam",
	KindMotu:      "motu",
	KindFireface:  "fireface",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("kind(%d)", int32(k))
}

// Valid reports whether k is one of the kinds known to the ALSA firewire stack.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}

	return 0, errors.Wrapf(ErrUnknownKind, "%q", s)
}
