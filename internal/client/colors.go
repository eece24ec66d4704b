package client

// palette is the rotation of user colors. A joining user takes the color
// after the previously joined user's, so rosters stay visually distinct
// and every client assigns the same colors in the same join order.
var palette = []string{
	"#0074D9",
	"#FF4136",
	"#2ECC40",
	"#FF851B",
	"#B10DC9",
	"#39CCCC",
	"#F012BE",
	"#FFDC00",
	"#001F3F",
	"#3D9970",
	"#85144B",
	"#7FDBFF",
}

// NextColor returns the palette color following prev, or the first color
// when prev is empty or unknown.
func NextColor(prev string) string {
	for i, color := range palette {
		if color == prev {
			return palette[(i+1)%len(palette)]
		}
	}
	return palette[0]
}
