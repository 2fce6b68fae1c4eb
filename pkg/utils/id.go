package utils

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	idMu   sync.Mutex
	idMono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	// монотонная энтропия: id в пределах одной миллисекунды возрастают
	idMono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// NewID возвращает ULID, сортируемый по времени создания
func NewID(at time.Time) string {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), idMono)
	if err != nil {
		// переполнение монотонной энтропии в одной миллисекунде
		return ulid.Make().String()
	}
	return id.String()
}

// IDTime возвращает время, закодированное в ULID
func IDTime(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
