package csm

import "fmt"

const (
	// NumCodebooks is the number of audio codec codebooks per frame.
	NumCodebooks = 32

	// frameWidth is the codebook slots plus the single text slot.
	frameWidth = NumCodebooks + 1

	// textSlot is the column index of the text token within a row.
	textSlot = NumCodebooks
)

// FrameBuffer accumulates token frames row by row. Each row is frameWidth
// wide: slots 0..31 hold audio codec token IDs, slot 32 holds a text token
// ID. A parallel bool mask marks which slots are meaningful for the row, so
// a row is always either a pure text row or a pure audio row.
//
// Storage is a preallocated flat row-major slice that grows by whole rows;
// building a prompt never re-copies previously written rows unless the
// initial capacity is exceeded.
type FrameBuffer struct {
	tokens []int64
	mask   []bool
	rows   int
}

// NewFrameBuffer creates an empty buffer with capacity for the given number
// of rows. Capacity below 1 is treated as 1.
func NewFrameBuffer(capacity int) *FrameBuffer {
	if capacity < 1 {
		capacity = 1
	}

	return &FrameBuffer{
		tokens: make([]int64, 0, capacity*frameWidth),
		mask:   make([]bool, 0, capacity*frameWidth),
	}
}

// Len returns the number of rows written so far.
func (b *FrameBuffer) Len() int {
	if b == nil {
		return 0
	}

	return b.rows
}

// Reset empties the buffer while keeping its storage for reuse.
func (b *FrameBuffer) Reset() {
	b.tokens = b.tokens[:0]
	b.mask = b.mask[:0]
	b.rows = 0
}

// growRow appends one zeroed row and returns its flat offset.
func (b *FrameBuffer) growRow() int {
	offset := b.rows * frameWidth
	b.tokens = append(b.tokens, make([]int64, frameWidth)...)
	b.mask = append(b.mask, make([]bool, frameWidth)...)
	b.rows++

	return offset
}

// AppendTextToken appends one text row: only the text slot carries the
// token and only the text slot is marked valid.
func (b *FrameBuffer) AppendTextToken(id int64) {
	offset := b.growRow()
	b.tokens[offset+textSlot] = id
	b.mask[offset+textSlot] = true
}

// AppendAudioFrame appends one audio row from a full set of codebook token
// IDs: the 32 audio slots carry the codes and are marked valid, the text
// slot stays unset.
func (b *FrameBuffer) AppendAudioFrame(codes []int64) error {
	if len(codes) != NumCodebooks {
		return fmt.Errorf("audio frame has %d codes, want %d", len(codes), NumCodebooks)
	}

	offset := b.growRow()
	copy(b.tokens[offset:offset+NumCodebooks], codes)
	for i := range NumCodebooks {
		b.mask[offset+i] = true
	}

	return nil
}

// Append copies all rows of other onto the end of b.
func (b *FrameBuffer) Append(other *FrameBuffer) {
	if other == nil || other.rows == 0 {
		return
	}

	b.tokens = append(b.tokens, other.tokens...)
	b.mask = append(b.mask, other.mask...)
	b.rows += other.rows
}

// Row returns the token and mask slices for row i. The slices alias the
// buffer's storage and must be treated as read-only.
func (b *FrameBuffer) Row(i int) ([]int64, []bool) {
	if i < 0 || i >= b.rows {
		return nil, nil
	}

	offset := i * frameWidth
	return b.tokens[offset : offset+frameWidth], b.mask[offset : offset+frameWidth]
}

// Tokens returns the flat row-major token storage (rows × 33). The slice
// aliases the buffer and must be treated as read-only.
func (b *FrameBuffer) Tokens() []int64 {
	return b.tokens
}

// Mask returns the flat row-major validity mask (rows × 33). The slice
// aliases the buffer and must be treated as read-only.
func (b *FrameBuffer) Mask() []bool {
	return b.mask
}
