package audio_utils

// G.711 mu-law, https://en.wikipedia.org/wiki/%CE%9C-law_algorithm
const (
	mulawBias = 0x84
	mulawClip = 32635
)

// EncodeMulaw compresses 16-bit samples to one byte each.
func EncodeMulaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToMulaw(s)
	}
	return out
}

// DecodeMulaw expands mu-law bytes back to 16-bit samples.
func DecodeMulaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = mulawToLinear(b)
	}
	return out
}

func linearToMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func mulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := int(b>>4) & 0x07
	mantissa := int(b) & 0x0F
	s := ((mantissa << 3) + mulawBias) << exponent
	s -= mulawBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}
