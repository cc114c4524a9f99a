package kinect

import (
	"fmt"
	"image"
	"strings"

	"essaim.dev/freenect2/freenect2"
)

// Generation holds what differs between supported sensors. Everything else
// in a Session is shared.
type Generation struct {
	Name      string
	ColorSize image.Point
	DepthSize image.Point
	// MaxDepth is the far limit of the depth sensor in millimetres.
	MaxDepth float32
	// Combined devices deliver color, depth and registered depth in a single
	// callback instead of one callback per modality.
	Combined bool
}

var (
	Freenect2 = Generation{
		Name:      "freenect2",
		ColorSize: image.Pt(freenect2.ColorWidth, freenect2.ColorHeight),
		DepthSize: image.Pt(freenect2.DepthWidth, freenect2.DepthHeight),
		MaxDepth:  4500,
	}
	KinectOne = Generation{
		Name:      "kinectone",
		ColorSize: image.Pt(freenect2.ColorWidth, freenect2.ColorHeight),
		DepthSize: image.Pt(freenect2.DepthWidth, freenect2.DepthHeight),
		MaxDepth:  4500,
		Combined:  true,
	}
)

func (g Generation) String() string {
	return g.Name
}

func (g Generation) valid() bool {
	return g.ColorSize.X > 0 && g.ColorSize.Y > 0 && g.DepthSize.X > 0 && g.DepthSize.Y > 0
}

func GenerationByName(name string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "freenect2", "kinectv2":
		return Freenect2, nil
	case "kinectone", "kinect-one", "one":
		return KinectOne, nil
	}
	return Generation{}, fmt.Errorf("unknown device generation %q", name)
}
