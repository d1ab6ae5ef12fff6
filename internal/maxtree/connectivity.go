package maxtree

import "github.com/cockroachdb/errors"

// Connectivity is the pixel adjacency used for flooding.
type Connectivity int

const (
	// Four connects horizontal and vertical neighbours.
	Four Connectivity = 4
	// Eight also connects diagonal neighbours.
	Eight Connectivity = 8
)

// ParseConnectivity accepts 4 and 8; 0 selects Four.
func ParseConnectivity(n int) (Connectivity, error) {
	switch n {
	case 0, 4:
		return Four, nil
	case 8:
		return Eight, nil
	}
	return Four, errors.Wrapf(ErrInvalidInput, "connectivity must be 4 or 8, got %d", n)
}

// neighbours appends the in-bounds neighbours of pixel p to buf[:0].
func (c Connectivity) neighbours(p int32, width, height int, buf []int32) []int32 {
	buf = buf[:0]
	w := int32(width)
	x, y := int(p%w), int(p/w)
	left, right := x > 0, x < width-1
	up, down := y > 0, y < height-1
	if up {
		buf = append(buf, p-w)
	}
	if left {
		buf = append(buf, p-1)
	}
	if right {
		buf = append(buf, p+1)
	}
	if down {
		buf = append(buf, p+w)
	}
	if c == Eight {
		if up && left {
			buf = append(buf, p-w-1)
		}
		if up && right {
			buf = append(buf, p-w+1)
		}
		if down && left {
			buf = append(buf, p+w-1)
		}
		if down && right {
			buf = append(buf, p+w+1)
		}
	}
	return buf
}
