package detector

// Finger identifies one digit of a hand.
type Finger int

const (
	Thumb Finger = iota
	Index
	Middle
	Ring
	Pinky
	NumFingers
)

// fingerTips and fingerPIPs are indexed by Finger. For the thumb the joint
// below the tip is the IP joint.
var (
	fingerTips = [NumFingers]int{ThumbTip, IndexTip, MiddleTip, RingTip, PinkyTip}
	fingerPIPs = [NumFingers]int{ThumbIP, IndexPIP, MiddlePIP, RingPIP, PinkyPIP}
)

// FingersUp reports which fingers are raised.
//
// The four fingers are up when the tip sits above the PIP joint. The thumb
// folds sideways, so it is up when its tip lies outward of the IP joint:
// to the right for a right hand, to the left for a left hand.
func (h *HandLandmarks) FingersUp() [NumFingers]bool {
	var up [NumFingers]bool

	tip := h.Points[ThumbTip].X
	ip := h.Points[ThumbIP].X
	if h.Handedness == HandLeft {
		up[Thumb] = tip < ip
	} else {
		up[Thumb] = tip > ip
	}

	for f := Index; f < NumFingers; f++ {
		up[f] = h.Points[fingerTips[f]].Y < h.Points[fingerPIPs[f]].Y
	}

	return up
}

// CountFingers returns the number of raised fingers, 0 to 5.
func (h *HandLandmarks) CountFingers() int {
	n := 0
	for _, up := range h.FingersUp() {
		if up {
			n++
		}
	}
	return n
}
