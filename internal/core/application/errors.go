package application

import (
	"errors"
	"fmt"
)

var ErrInvalidArgument = errors.New("invalid argument")

type errContended struct {
	roundId string
	op      string
}

func (e errContended) Error() string {
	return fmt.Sprintf("too many concurrent updates of round %s during %s", e.roundId, e.op)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
