package proxy

import (
	"sync"

	"github.com/die-net/cacheproxy/internal/httpscan"
)

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, httpscan.ChunkSize)
		return &b
	},
}

func getChunk() *[]byte {
	return chunkPool.Get().(*[]byte)
}

func putChunk(b *[]byte) {
	chunkPool.Put(b)
}
