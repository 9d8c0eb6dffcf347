package game

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
	"sync"
	"time"
)

// RandomSource draws uniform six-sided die faces.
type RandomSource interface {
	Die() int
}

type seededDice struct {
	mu  sync.Mutex
	rng *mathrand.Rand
}

// NewRandomSource returns dice seeded with seed, or with a crypto-random
// seed when seed is zero.
func NewRandomSource(seed int64) RandomSource {
	if seed == 0 {
		seed = cryptoSeed()
	}
	return &seededDice{rng: mathrand.New(mathrand.NewSource(seed))}
}

func (d *seededDice) Die() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(6) + 1
}

func cryptoSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// SequenceSource replays a fixed list of faces, wrapping at the end.
type SequenceSource struct {
	mu    sync.Mutex
	faces []int
	next  int
}

func NewSequenceSource(faces ...int) *SequenceSource {
	return &SequenceSource{faces: append([]int(nil), faces...)}
}

func (s *SequenceSource) Die() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.faces) == 0 {
		return 1
	}
	face := s.faces[s.next%len(s.faces)]
	s.next++
	return face
}

// Push appends faces to be drawn after the current sequence.
func (s *SequenceSource) Push(faces ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []int
	if s.next < len(s.faces) {
		pending = s.faces[s.next:]
	}
	s.faces = append(append([]int(nil), pending...), faces...)
	s.next = 0
}
