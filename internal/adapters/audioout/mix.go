package audioout

// mixInto accumulates one peer's mono PCM into a stereo int32 bus with
// linear gain and pan weights. Positive pan shifts right: the left
// weight falls off as pan goes positive, the right weight as it goes
// negative.
func mixInto(bus []int32, mono []int16, volume, pan float64) {
	if volume <= 0 {
		return
	}
	left := volume * (1 - max(0, pan))
	right := volume * (1 + min(0, pan))
	n := min(len(mono), len(bus)/2)
	for i := 0; i < n; i++ {
		s := float64(mono[i])
		bus[2*i] += int32(s * left)
		bus[2*i+1] += int32(s * right)
	}
}

// clampToS16 folds the accumulation bus into the device buffer.
func clampToS16(bus []int32, out []int16) {
	for i := range out {
		v := bus[i]
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
}
