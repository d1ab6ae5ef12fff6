package maxtree

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

// parseGrid reads whitespace-separated rows; "#" marks a masked pixel.
func parseGrid(t *testing.T, input string) *Image[float64] {
	t.Helper()
	img := &Image[float64]{}
	var masked bool
	for _, line := range strings.Split(strings.TrimSpace(input), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if img.Width == 0 {
			img.Width = len(fields)
		}
		require.Len(t, fields, img.Width, "ragged row %q", line)
		for _, f := range fields {
			if f == "#" {
				img.Pix = append(img.Pix, math.NaN())
				img.Mask = append(img.Mask, true)
				masked = true
				continue
			}
			v, err := strconv.ParseFloat(f, 64)
			require.NoError(t, err)
			img.Pix = append(img.Pix, v)
			img.Mask = append(img.Mask, false)
		}
		img.Height++
	}
	if !masked {
		img.Mask = nil
	}
	return img
}

func formatTree[T Scalar](t *Tree[T]) string {
	var b strings.Builder
	fmt.Fprintf(&b, "nodes=%d roots=%d\n", t.Len(), len(t.Roots))
	for i, n := range t.Nodes {
		x, y := int(n.Pixel)%t.Width, int(n.Pixel)/t.Width
		parent := "none"
		if n.Parent != NoNode {
			parent = strconv.Itoa(int(n.Parent))
		}
		fmt.Fprintf(&b, "%d: level=%g area=%d pixel=(%d,%d) parent=%s\n",
			i, float64(n.Level), n.Area, x, y, parent)
	}
	return b.String()
}

func buildAndFormat[T Scalar](img *Image[T], opts Options) string {
	tree, err := Build(img, opts)
	if err != nil {
		return fmt.Sprintf("error: %v\n", err)
	}
	if err := tree.Validate(); err != nil {
		return fmt.Sprintf("invalid tree: %v\n", err)
	}
	return formatTree(tree)
}

func TestBuildDataDriven(t *testing.T) {
	datadriven.RunTest(t, "testdata/build", func(t *testing.T, d *datadriven.TestData) string {
		switch d.Cmd {
		case "build":
			var opts Options
			if d.HasArg("dark") {
				opts.Direction = Dark
			}
			if d.HasArg("conn") {
				var conn int
				d.ScanArgs(t, "conn", &conn)
				opts.Connectivity = Connectivity(conn)
			}
			img := parseGrid(t, d.Input)
			double := buildAndFormat(img, opts)
			single := buildAndFormat(Convert[float32](img), opts)
			require.Equal(t, double, single, "precision variants disagree")
			return double
		default:
			d.Fatalf(t, "unknown command %s", d.Cmd)
			return ""
		}
	})
}

func TestBuildInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		img  *Image[float64]
		want error
	}{
		{"nil image", nil, ErrInvalidInput},
		{"negative width", &Image[float64]{Width: -1, Height: 2}, ErrInvalidInput},
		{"short buffer", NewImage(3, 3, make([]float64, 8)), ErrInvalidInput},
		{"long buffer", NewImage(2, 2, make([]float64, 5)), ErrInvalidInput},
		{"mask length", &Image[float64]{Width: 2, Height: 1, Pix: []float64{1, 2}, Mask: []bool{true}}, ErrInvalidInput},
		{"infinity", NewImage(2, 1, []float64{1, math.Inf(1)}), ErrInvalidInput},
		{"nan", NewImage(1, 2, []float64{math.NaN(), 0}), ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := Build(tt.img, Options{})
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.want), "got %v", err)
			require.Nil(t, tree)
		})
	}
}

func TestBuildInvalidOptions(t *testing.T) {
	img := NewImage(2, 2, []float64{1, 2, 3, 4})
	_, err := Build(img, Options{Connectivity: 6})
	require.True(t, errors.Is(err, ErrInvalidInput))
	_, err = Build(img, Options{Direction: Direction(7)})
	require.True(t, errors.Is(err, ErrInvalidInput))
}

func TestBuildResourceExhausted(t *testing.T) {
	img := NewImage(10, 10, make([]float64, 100))
	_, err := Build(img, Options{MaxPixels: 99})
	require.True(t, errors.Is(err, ErrResourceExhausted), "got %v", err)

	_, err = Build(img, Options{MaxPixels: 100})
	require.NoError(t, err)
}

func TestBuildEmpty(t *testing.T) {
	for _, img := range []*Image[float32]{
		NewImage[float32](0, 0, nil),
		NewImage[float32](0, 5, nil),
		NewImage[float32](5, 0, nil),
	} {
		tree, err := Build(img, Options{})
		require.NoError(t, err)
		require.True(t, tree.Empty())
		require.Equal(t, NoNode, tree.Root())
		require.NoError(t, tree.Validate())
	}
}

func TestBuildFullyMasked(t *testing.T) {
	img := &Image[float64]{
		Width: 2, Height: 1,
		Pix:  []float64{math.NaN(), math.Inf(-1)},
		Mask: []bool{true, true},
	}
	tree, err := Build(img, Options{})
	require.NoError(t, err)
	require.True(t, tree.Empty())
	require.Equal(t, []int32{NoNode, NoNode}, tree.Canonical)
}

func TestUniformImage(t *testing.T) {
	const w, h = 31, 17
	pix := make([]float64, w*h)
	for i := range pix {
		pix[i] = 42
	}
	tree, err := Build(NewImage(w, h, pix), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, tree.Len())
	require.Equal(t, w*h, tree.Nodes[0].Area)
	require.True(t, tree.IsRoot(0))
}

func TestSingleBrightPixel(t *testing.T) {
	const size = 99
	pix := make([]float32, size*size)
	center := size*49 + 49
	pix[center] = 100
	tree, err := Build(NewImage(size, size, pix), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, tree.Len())

	leaf := tree.Canonical[center]
	require.Equal(t, float32(100), tree.Level(leaf))
	require.Equal(t, 1, tree.Nodes[leaf].Area)
	require.Equal(t, tree.Root(), tree.Parent(leaf))
	require.Equal(t, []int32{int32(center)}, tree.Pixels(leaf))
}

// randomImage returns a w×h image of small integer levels so plateaus are
// common.
func randomImage(rng *rand.Rand, w, h, levels int) *Image[float64] {
	pix := make([]float64, w*h)
	for i := range pix {
		pix[i] = float64(rng.Intn(levels))
	}
	return NewImage(w, h, pix)
}

func TestBuildProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		w, h := 1+rng.Intn(24), 1+rng.Intn(24)
		img := randomImage(rng, w, h, 1+rng.Intn(8))
		if iter%3 == 0 {
			img.Mask = make([]bool, len(img.Pix))
			for i := range img.Mask {
				img.Mask[i] = rng.Intn(5) == 0
			}
		}
		for _, dir := range []Direction{Bright, Dark} {
			for _, conn := range []Connectivity{Four, Eight} {
				name := fmt.Sprintf("%d/%dx%d/%s/%d", iter, w, h, dir, conn)
				t.Run(name, func(t *testing.T) {
					opts := Options{Direction: dir, Connectivity: conn}
					tree, err := Build(img, opts)
					require.NoError(t, err)
					require.NoError(t, tree.Validate())

					// Partition: each valid pixel has exactly one canonical
					// node and the roots' regions cover every valid pixel.
					seen := make([]int, len(img.Pix))
					for _, r := range tree.Roots {
						for _, p := range tree.Pixels(r) {
							seen[p]++
						}
					}
					for p := range img.Pix {
						if img.Masked(p) {
							require.Equal(t, NoNode, tree.Canonical[p])
							require.Zero(t, seen[p])
							continue
						}
						require.Equal(t, 1, seen[p], "pixel %d", p)
						require.Equal(t, img.Pix[p], tree.Level(tree.Canonical[p]))
					}

					// Root areas sum to the valid pixel count.
					areas := tree.CumulativeAreas()
					total := 0
					for _, r := range tree.Roots {
						total += areas[r]
					}
					require.Equal(t, img.ValidCount(), total)

					// Node regions match a flood from the representative
					// pixel over pixels at least as extreme as the level.
					for i := range tree.Nodes {
						n := int32(i)
						want := floodRegion(img, opts, tree.Nodes[n].Pixel, tree.Level(n))
						require.ElementsMatch(t, want, tree.Pixels(n), "node %d", n)
					}

					// Rebuilding yields the identical tree.
					again, err := Build(img, opts)
					require.NoError(t, err)
					require.Equal(t, tree.Nodes, again.Nodes)
					require.Equal(t, tree.Canonical, again.Canonical)
				})
			}
		}
	}
}

// floodRegion is a direct breadth-first reconstruction of the component of
// pixel seed at level.
func floodRegion[T Scalar](img *Image[T], opts Options, seed int32, level T) []int32 {
	conn, _ := ParseConnectivity(int(opts.Connectivity))
	inside := func(p int32) bool {
		v := img.Pix[p]
		return !img.Masked(int(p)) && (v == level || Beyond(opts.Direction, v, level))
	}
	seen := map[int32]bool{seed: true}
	queue := []int32{seed}
	var buf [8]int32
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, q := range conn.neighbours(p, img.Width, img.Height, buf[:]) {
			if !seen[q] && inside(q) {
				seen[q] = true
				queue = append(queue, q)
			}
		}
	}
	out := make([]int32, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

func TestPrecisionVariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	img := NewImage(40, 30, make([]float64, 1200))
	for i := range img.Pix {
		// Quarter steps are exact in both precisions.
		img.Pix[i] = float64(rng.Intn(400)) / 4
	}
	d, err := Build(img, Options{})
	require.NoError(t, err)
	s, err := Build(Convert[float32](img), Options{})
	require.NoError(t, err)

	require.Equal(t, d.Len(), s.Len())
	require.Equal(t, d.Canonical, s.Canonical)
	for i := range d.Nodes {
		require.Equal(t, d.Nodes[i].Parent, s.Nodes[i].Parent)
		require.Equal(t, d.Nodes[i].Area, s.Nodes[i].Area)
		require.Equal(t, float32(d.Nodes[i].Level), s.Nodes[i].Level)
	}
}

func TestPrecisionBelowEpsilonMayDiverge(t *testing.T) {
	// 1 and 1+1e-9 are distinct doubles but the same float32.
	img := NewImage(2, 1, []float64{1, 1 + 1e-9})
	d, err := Build(img, Options{})
	require.NoError(t, err)
	s, err := Build(Convert[float32](img), Options{})
	require.NoError(t, err)
	require.Equal(t, 2, d.Len())
	require.Equal(t, 1, s.Len())
	require.Less(t, 1e-9, float64(Epsilon[float32]()))
}

func TestStackDepthBoundedByLevels(t *testing.T) {
	// A ramp has as many levels as pixels; the tree is a chain.
	const n = 64
	pix := make([]float64, n)
	for i := range pix {
		pix[i] = float64(i)
	}
	tree, err := Build(NewImage(n, 1, pix), Options{})
	require.NoError(t, err)
	require.Equal(t, n, tree.Len())
	require.Equal(t, n-1, tree.Summarize().MaxDepth)
	require.Equal(t, 1, tree.Summarize().Leaves)
}

func TestSummarize(t *testing.T) {
	img := parseGrid(t, "1 3 2 3 #")
	tree, err := Build(img, Options{})
	require.NoError(t, err)
	require.Equal(t, Summary{Nodes: 4, Roots: 1, Leaves: 2, MaxDepth: 2, Pixels: 5, Masked: 1}, tree.Summarize())
}

func TestValidateDetectsBrokenTrees(t *testing.T) {
	img := parseGrid(t, "1 3 2 3 1")
	tree, err := Build(img, Options{})
	require.NoError(t, err)

	// Flatten a leaf onto its parent's level.
	broken := *tree
	broken.Nodes = append([]Node[float64](nil), tree.Nodes...)
	broken.Nodes[0].Level = broken.Nodes[broken.Nodes[0].Parent].Level
	err = broken.Validate()
	require.True(t, errors.Is(err, ErrInvariantViolation), "got %v", err)
	require.True(t, errors.HasAssertionFailure(err))
}

// handTree assembles a tree from explicit nodes and canonical assignments.
func handTree(w, h int, nodes []Node[float64], canonical []int32) *Tree[float64] {
	t := &Tree[float64]{Width: w, Height: h, Direction: Bright, Connectivity: Four, Nodes: nodes, Canonical: canonical}
	for i, n := range nodes {
		if n.Parent == NoNode {
			t.Roots = append(t.Roots, int32(i))
		}
	}
	t.index()
	return t
}

func TestValidateDetectsMergedComponents(t *testing.T) {
	tests := []struct {
		name string
		tree *Tree[float64]
	}{
		{
			// 5 0 5: both peaks in one node.
			name: "row",
			tree: handTree(3, 1, []Node[float64]{
				{Level: 5, Parent: 1, Area: 2, Pixel: 0},
				{Level: 0, Parent: NoNode, Area: 1, Pixel: 1},
			}, []int32{0, 1, 0}),
		},
		{
			// 0 2 / 2 1: the diagonal 2s do not touch with 4-connectivity.
			name: "diagonal",
			tree: handTree(2, 2, []Node[float64]{
				{Level: 2, Parent: 1, Area: 2, Pixel: 1},
				{Level: 1, Parent: 2, Area: 1, Pixel: 3},
				{Level: 0, Parent: NoNode, Area: 1, Pixel: 0},
			}, []int32{2, 0, 0, 1}),
		},
		{
			// 5 0 5: two roots that are one region.
			name: "split root",
			tree: handTree(3, 1, []Node[float64]{
				{Level: 5, Parent: 1, Area: 1, Pixel: 0},
				{Level: 0, Parent: NoNode, Area: 1, Pixel: 1},
				{Level: 5, Parent: NoNode, Area: 1, Pixel: 2},
			}, []int32{0, 1, 2}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tree.Validate()
			require.True(t, errors.Is(err, ErrInvariantViolation), "got %v", err)
		})
	}
}

func TestSameLevelComponentsStayDistinct(t *testing.T) {
	img := parseGrid(t, "0 2\n2 1")
	tree, err := Build(img, Options{})
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
	require.NotEqual(t, tree.Canonical[1], tree.Canonical[2])
	require.Equal(t, 2.0, tree.Level(tree.Canonical[1]))
	require.Equal(t, 2.0, tree.Level(tree.Canonical[2]))
	require.Equal(t, tree.Canonical[3], tree.Parent(tree.Canonical[1]))
	require.Equal(t, tree.Canonical[3], tree.Parent(tree.Canonical[2]))

	tree, err = Build(img, Options{Connectivity: Eight})
	require.NoError(t, err)
	require.Equal(t, tree.Canonical[1], tree.Canonical[2])
}

// referenceComponents labels the connected components of the pixels at
// least as extreme as level by brute force. Pixels outside get -1.
func referenceComponents(img *Image[float64], opts Options, level float64) []int {
	labels := make([]int, len(img.Pix))
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for p := range img.Pix {
		v := img.Pix[p]
		if labels[p] >= 0 || img.Masked(p) || !(v == level || Beyond(opts.Direction, v, level)) {
			continue
		}
		for _, q := range floodRegion(img, opts, int32(p), level) {
			labels[q] = next
		}
		next++
	}
	return labels
}

func TestBuildMatchesReferenceComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(18))
	for iter := 0; iter < 300; iter++ {
		w, h := 1+rng.Intn(12), 1+rng.Intn(12)
		img := randomImage(rng, w, h, 2+rng.Intn(4))
		if iter%4 == 0 {
			img.Mask = make([]bool, len(img.Pix))
			for i := range img.Mask {
				img.Mask[i] = rng.Intn(6) == 0
			}
		}
		opts := Options{Direction: Direction(iter % 2), Connectivity: []Connectivity{Four, Eight}[iter/2%2]}
		tree, err := Build(img, opts)
		require.NoError(t, err)
		require.NoError(t, tree.Validate())

		// At every level of the image, two pixels share a component exactly
		// when their ancestors at that level are the same node.
		levels := make(map[float64]bool)
		for p, v := range img.Pix {
			if !img.Masked(p) {
				levels[v] = true
			}
		}
		for level := range levels {
			want := referenceComponents(img, opts, level)
			nodeOf := make(map[int]int32)
			for p, label := range want {
				if label < 0 {
					continue
				}
				// The least extreme ancestor still at or beyond level
				// stands for the pixel's component.
				n := tree.Canonical[p]
				for {
					parent := tree.Parent(n)
					if parent == NoNode || Beyond(opts.Direction, level, tree.Level(parent)) {
						break
					}
					n = parent
				}
				if prev, ok := nodeOf[label]; ok {
					require.Equal(t, prev, n, "iter %d: component split at level %v", iter, level)
				} else {
					nodeOf[label] = n
				}
			}
			seen := make(map[int32]bool)
			for _, n := range nodeOf {
				require.False(t, seen[n], "iter %d: components merged at level %v", iter, level)
				seen[n] = true
			}
		}
	}
}
