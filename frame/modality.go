// Package frame holds the latest color and depth frame of a capture session
// and decides when the two form a pair worth publishing.
package frame

import (
	"errors"
	"fmt"
)

var ErrUnknownModality = errors.New("frame: unknown modality")

// Modality is one of the two capture streams.
type Modality int

const (
	Color Modality = iota
	Depth
)

func (m Modality) String() string {
	switch m {
	case Color:
		return "color"
	case Depth:
		return "depth"
	}
	return fmt.Sprintf("Modality(%d)", int(m))
}

func (m Modality) phase() (Phase, error) {
	switch m {
	case Color:
		return ColorOnly, nil
	case Depth:
		return DepthOnly, nil
	}
	return None, fmt.Errorf("%w: %d", ErrUnknownModality, int(m))
}
