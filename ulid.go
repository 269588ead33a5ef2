package fwsnd

import "github.com/oklog/ulid/v2"

func newID() ulid.ULID {
	return ulid.MustNew(ulid.Now(), ulid.DefaultEntropy())
}

// IDRecall hands out fresh ids and remembers them, so tests can predict
// the NATS subjects of the units they create.
type IDRecall struct {
	Past []ulid.ULID
}

func (u *IDRecall) First() ulid.ULID {
	return u.Past[0]
}

func (u *IDRecall) Gen() ulid.ULID {
	ul := newID()
	u.Past = append(u.Past, ul)
	return ul
}
