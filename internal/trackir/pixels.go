package trackir

// Pixel is one detected bright point as reported by the sensor: the sensor
// row, the x/y coordinates, and the raw delimiter byte that closes the group.
type Pixel struct {
	Row   byte `json:"row"`
	X     byte `json:"x"`
	Y     byte `json:"y"`
	Delim byte `json:"delim"`
}

// ExtractPixels splits a data-frame payload into its 4-byte pixel groups.
// Sensor scan order is significant downstream and is preserved; a trailing
// group shorter than four bytes is dropped. Total function, never fails.
func ExtractPixels(payload []byte) []Pixel {
	n := len(payload) / 4
	if n == 0 {
		return nil
	}

	pixels := make([]Pixel, 0, n)
	for i := 0; i+4 <= len(payload); i += 4 {
		pixels = append(pixels, Pixel{
			Row:   payload[i],
			X:     payload[i+1],
			Y:     payload[i+2],
			Delim: payload[i+3],
		})
	}
	return pixels
}
