package nearfilter

// MaxRevolutionPoints is the default upper bound on points in one revolution.
const MaxRevolutionPoints = 360

// Point is a single sensor return.
type Point struct {
	Angle     float64 `json:"angle"`     // degrees, [0, 360)
	Distance  uint16  `json:"distance"`  // millimetres, 0 = no return
	Intensity uint8   `json:"intensity"` // sensor confidence score
	Timestamp uint64  `json:"timestamp"` // sensor clock, milliseconds
}

// Batch is a fixed-capacity, ordered collection of points.
//
// Pushing into a full batch is a no-op that reports false; the batch never
// grows past the capacity it was created with.
type Batch struct {
	points   []Point
	capacity int
}

// NewBatch returns an empty batch that holds at most capacity points.
// A non-positive capacity falls back to MaxRevolutionPoints.
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		capacity = MaxRevolutionPoints
	}
	return &Batch{
		points:   make([]Point, 0, capacity),
		capacity: capacity,
	}
}

// Push appends p and reports whether it was stored.
func (b *Batch) Push(p Point) bool {
	if len(b.points) >= b.capacity {
		return false
	}
	b.points = append(b.points, p)
	return true
}

// Len returns the number of stored points.
func (b *Batch) Len() int { return len(b.points) }

// Cap returns the fixed capacity.
func (b *Batch) Cap() int { return b.capacity }

// Full reports whether further pushes will be refused.
func (b *Batch) Full() bool { return len(b.points) >= b.capacity }

// Points returns the stored points. The slice aliases the batch's storage and
// must not be appended to.
func (b *Batch) Points() []Point { return b.points[:len(b.points):len(b.points)] }

// Reset empties the batch, keeping its storage.
func (b *Batch) Reset() { b.points = b.points[:0] }
