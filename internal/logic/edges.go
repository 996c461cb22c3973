package logic

// Edges returns the channels in channels that went from released in prev to
// touched in cur. Releases and held touches produce nothing, so a touch held
// across many samples yields exactly one edge. The result follows the order
// of channels, which callers keep ascending.
func Edges(prev, cur Bitmask, channels []Channel) []Channel {
	rising := cur &^ prev
	if rising == 0 {
		return nil
	}
	var out []Channel
	for _, c := range channels {
		if rising.Has(c) {
			out = append(out, c)
		}
	}
	return out
}
