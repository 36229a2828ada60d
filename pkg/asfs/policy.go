package asfs

import "github.com/herlein/asfs/pkg/radio"

// NextState decides the spreading factor to try after an undetected CAD.
//
// Each failure steps one SF up (more sensitivity, so a transmitter on a
// higher SF can be found), wrapping SF11 back to SF7. Once a failure would
// push the count past MaxConsecutiveFailures the climb is abandoned and the
// search restarts from SF7 with a clean count.
func NextState(sf radio.SpreadingFactor, failures uint) (radio.SpreadingFactor, uint) {
	if failures+1 > MaxConsecutiveFailures {
		return radio.SF7, 0
	}
	return nextSF(sf), failures + 1
}

func nextSF(sf radio.SpreadingFactor) radio.SpreadingFactor {
	if sf >= radio.SF11 || sf < radio.SF7 {
		return radio.SF7
	}
	return sf + 1
}
