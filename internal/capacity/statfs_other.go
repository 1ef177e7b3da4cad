//go:build !(linux || darwin)

package capacity

import (
	"context"
	"errors"
)

type StatfsProbe struct{}

func NewStatfsProbe() *StatfsProbe {
	return &StatfsProbe{}
}

func (p *StatfsProbe) UsedPercent(ctx context.Context, path string) (int, error) {
	return 0, errors.New("statfs probe is not supported on this platform")
}
