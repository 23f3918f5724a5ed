package luastack

import (
	"bytes"
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	farm "github.com/dgryski/go-farm"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// binarySignature prefixes precompiled Lua chunks.
const binarySignature = "\x1bLua"

// DefaultChunkCache is shared by runtimes created without a ChunkCache.
var DefaultChunkCache = NewChunkCache(0)

// ChunkCache caches compiled prototypes using LRU eviction. Prototypes are
// immutable, so one cache may serve many runtimes concurrently.
type ChunkCache struct {
	mu        sync.Mutex
	cache     map[uint64]*list.Element
	evictList *list.List
	maxSize   int
	hits      int
	misses    int
}

type chunkEntry struct {
	key   uint64
	name  string
	src   []byte
	proto *lua.FunctionProto
}

// NewChunkCache creates a chunk cache. maxSize is the maximum number of
// prototypes to keep (0 or negative means the default of 1000).
func NewChunkCache(maxSize int) *ChunkCache {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &ChunkCache{
		cache:     make(map[uint64]*list.Element),
		evictList: list.New(),
		maxSize:   maxSize,
	}
}

func chunkKey(name string, src []byte) uint64 {
	buf := make([]byte, 0, len(name)+1+len(src))
	buf = append(buf, name...)
	buf = append(buf, 0)
	buf = append(buf, src...)
	return farm.Fingerprint64(buf)
}

// get returns the cached prototype for the chunk, if any.
func (c *ChunkCache) get(name string, src []byte) (*lua.FunctionProto, bool) {
	key := chunkKey(name, src)
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		entry := elem.Value.(*chunkEntry)
		// Fingerprints can collide; compare the chunk itself.
		if entry.name == name && bytes.Equal(entry.src, src) {
			c.evictList.MoveToFront(elem)
			c.hits++
			return entry.proto, true
		}
	}
	c.misses++
	return nil, false
}

// put adds a prototype and evicts the oldest entry if the cache is full.
func (c *ChunkCache) put(name string, src []byte, proto *lua.FunctionProto) {
	key := chunkKey(name, src)
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.cache[key]; ok {
		c.evictList.MoveToFront(elem)
		entry := elem.Value.(*chunkEntry)
		entry.name, entry.src, entry.proto = name, bytes.Clone(src), proto
		return
	}
	entry := &chunkEntry{key: key, name: name, src: bytes.Clone(src), proto: proto}
	c.cache[key] = c.evictList.PushFront(entry)
	if c.evictList.Len() > c.maxSize {
		c.evictOldest()
	}
}

func (c *ChunkCache) evictOldest() {
	elem := c.evictList.Back()
	if elem != nil {
		c.evictList.Remove(elem)
		delete(c.cache, elem.Value.(*chunkEntry).key)
	}
}

// Purge empties the cache.
func (c *ChunkCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[uint64]*list.Element)
	c.evictList.Init()
}

// ChunkCacheStats reports cache usage.
type ChunkCacheStats struct {
	Size    int
	MaxSize int
	Hits    int
	Misses  int
}

// Stats returns current cache statistics
func (c *ChunkCache) Stats() ChunkCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChunkCacheStats{
		Size:    len(c.cache),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Compile parses and compiles a text chunk, consulting the cache first.
// The second result reports a cache hit.
func (c *ChunkCache) Compile(src []byte, chunkName string) (*lua.FunctionProto, bool, error) {
	if proto, ok := c.get(chunkName, src); ok {
		return proto, true, nil
	}
	proto, err := compileChunk(src, chunkName)
	if err != nil {
		return nil, false, err
	}
	c.put(chunkName, src, proto)
	return proto, false, nil
}

func compileChunk(src []byte, chunkName string) (*lua.FunctionProto, error) {
	if bytes.HasPrefix(src, []byte(binarySignature)) {
		return nil, &Error{
			Type:     ErrorTypeSyntax,
			Cause:    "binary chunks are not supported",
			Location: &Location{Chunk: chunkName},
		}
	}
	chunk, err := parse.Parse(bytes.NewReader(src), chunkName)
	if err != nil {
		return nil, syntaxError(chunkName, err)
	}
	proto, err := lua.Compile(chunk, chunkName)
	if err != nil {
		return nil, syntaxError(chunkName, err)
	}
	return proto, nil
}

func syntaxError(chunkName string, err error) *Error {
	syntaxErr := &Error{
		Type:     ErrorTypeSyntax,
		Cause:    err.Error(),
		Location: &Location{Chunk: chunkName},
		Wrapped:  err,
	}
	var parseErr *parse.Error
	var compileErr *lua.CompileError
	switch {
	case errors.As(err, &parseErr):
		syntaxErr.Cause = parseErr.Message
		if parseErr.Token != "" {
			syntaxErr.Cause += " near '" + parseErr.Token + "'"
		}
		if parseErr.Pos.Line > 0 {
			syntaxErr.Location.Line = parseErr.Pos.Line
			syntaxErr.Location.Column = parseErr.Pos.Column
		}
	case errors.As(err, &compileErr):
		syntaxErr.Cause = compileErr.Message
		syntaxErr.Location.Line = compileErr.Line
	}
	syntaxErr.Cause = syntaxErr.Location.String() + ": " + syntaxErr.Cause
	return syntaxErr
}

// Load compiles a text chunk and pushes it as a function. On a syntax error
// the stack is unchanged and the *Error carries the location.
func (s *Stack) Load(src []byte, chunkName string) error {
	if err := s.rt.checkOpen(); err != nil {
		return err
	}
	if err := s.ensure(1); err != nil {
		return err
	}
	ctx := context.Background()
	event := &LoadEvent{
		RuntimeID: s.rt.id,
		ChunkName: chunkName,
		Size:      len(src),
		StartTime: time.Now(),
	}
	s.rt.callbacks.BeforeLoad(ctx, event)

	proto, hit, err := s.rt.chunks.Compile(src, chunkName)
	if err == nil {
		err = s.protect(func() { s.L.Push(s.L.NewFunctionFromProto(proto)) })
	}

	event.CacheHit = hit
	event.Duration = time.Since(event.StartTime)
	event.Error = err
	s.rt.callbacks.AfterLoad(ctx, event)
	if err != nil {
		s.rt.logger.Debug("chunk rejected", "chunk", chunkName, "error", err)
		return err
	}
	s.rt.logger.Debug("chunk loaded", "chunk", chunkName, "size", len(src), "cache_hit", hit)
	return nil
}

// LoadString is Load for source held in a string.
func (s *Stack) LoadString(src, chunkName string) error {
	return s.Load([]byte(src), chunkName)
}

// LoadFunction compiles a text chunk and returns it as a retained Function.
// The stack is unchanged.
func (rt *Runtime) LoadFunction(src []byte, chunkName string) (Function, error) {
	s := rt.stack
	if err := s.Load(src, chunkName); err != nil {
		return Function{}, err
	}
	fn, err := PopAs[Function](s)
	if err != nil {
		s.L.Pop(1)
		return Function{}, err
	}
	return fn, nil
}
