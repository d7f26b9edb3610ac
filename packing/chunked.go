package packing

import (
	"fmt"
	"sync"
)

// DefaultMaxBytesPerChunk bounds the size of each unpacked chunk.
const DefaultMaxBytesPerChunk = 199000000

// Chunked holds a voxel buffer split into chunks.  Chunks are produced lazily from
// the source buffer on first access, so only touched chunks are ever unpacked.
type Chunked struct {
	src      []byte
	srcChunk int // source bytes per chunk
	total    int // total voxels
	chunkLen int // voxels per full chunk
	uneven   bool
	chunks   [][]byte
	onces    []sync.Once
	unpackFn func(src []byte) []byte
}

func newChunked(src []byte, srcChunk, expand int, unpackFn func([]byte) []byte) *Chunked {
	if srcChunk < 1 {
		srcChunk = 1
	}
	n := (len(src) + srcChunk - 1) / srcChunk
	return &Chunked{
		src:      src,
		srcChunk: srcChunk,
		total:    len(src) * expand,
		chunkLen: srcChunk * expand,
		chunks:   make([][]byte, n),
		onces:    make([]sync.Once, n),
		unpackFn: unpackFn,
	}
}

// UnpackChunked splits bit-packed data into chunks of whole bytes so that no chunk
// unpacks to more than maxChunkBytes voxels (at least one source byte per chunk).
func UnpackChunked(packed []byte, maxChunkBytes int) *Chunked {
	return newChunked(packed, maxChunkBytes/8, 8, Unpack)
}

// SplitChunked splits native 8-bit voxels into chunks of at most maxChunkBytes.
// Chunks share memory with raw.
func SplitChunked(raw []byte, maxChunkBytes int) *Chunked {
	return newChunked(raw, maxChunkBytes, 1, nil)
}

// ChunkedFrom wraps already unpacked chunks, e.g., for testing chunk boundaries.
func ChunkedFrom(chunks [][]byte) *Chunked {
	c := &Chunked{
		chunks: chunks,
		onces:  make([]sync.Once, len(chunks)),
		uneven: true,
	}
	for i, chunk := range chunks {
		c.total += len(chunk)
		c.onces[i].Do(func() {})
	}
	return c
}

// Len returns the total number of voxels.
func (c *Chunked) Len() int {
	return c.total
}

// NumChunks returns the number of chunks.
func (c *Chunked) NumChunks() int {
	return len(c.chunks)
}

// Chunk returns chunk i, unpacking it if necessary.  Safe for concurrent use.
func (c *Chunked) Chunk(i int) []byte {
	c.onces[i].Do(func() {
		beg := i * c.srcChunk
		end := beg + c.srcChunk
		if end > len(c.src) {
			end = len(c.src)
		}
		if c.unpackFn == nil {
			c.chunks[i] = c.src[beg:end]
		} else {
			c.chunks[i] = c.unpackFn(c.src[beg:end])
		}
	})
	return c.chunks[i]
}

// locate returns the chunk holding voxel offset and the offset within that chunk.
func (c *Chunked) locate(offset int) (chunk, within int) {
	if !c.uneven {
		return offset / c.chunkLen, offset % c.chunkLen
	}
	for chunk = 0; chunk < len(c.chunks); chunk++ {
		if offset < len(c.chunks[chunk]) {
			break
		}
		offset -= len(c.chunks[chunk])
	}
	return chunk, offset
}

// Read returns the voxels in [offset, offset+length).  If the span lies within one
// chunk the returned slice shares that chunk's memory and must not be modified;
// spans that cross chunk boundaries are copied into a new buffer.
func (c *Chunked) Read(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > c.total {
		return nil, fmt.Errorf("read [%d,%d) outside of %d voxels", offset, offset+length, c.total)
	}
	if length == 0 {
		return []byte{}, nil
	}
	ci, within := c.locate(offset)
	chunk := c.Chunk(ci)
	if within+length <= len(chunk) {
		return chunk[within : within+length], nil
	}
	out := make([]byte, length)
	n := copy(out, chunk[within:])
	for n < length {
		ci++
		n += copy(out[n:], c.Chunk(ci))
	}
	return out, nil
}
