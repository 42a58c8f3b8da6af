// SPDX-License-Identifier: MIT
package bus

// Downmix averages interleaved multichannel frames into mono samples in dst
// and returns the number of frames written. Mono input is copied as is.
// Trailing partial frames and frames beyond len(dst) are ignored.
func Downmix(dst, interleaved []float32, channels int) int {
	if channels <= 1 {
		return copy(dst, interleaved)
	}
	frames := min(len(interleaved)/channels, len(dst))
	scale := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * scale
	}
	return frames
}
