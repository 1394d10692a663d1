package logger

import (
	"os"
	"strconv"
	"strings"
	"sync"

	coreconfig "github.com/m3rciful/shopbot/core/config"
)

// sampler lets num out of every den calls through. A zero ratio lets
// everything through.
type sampler struct {
	mu       sync.Mutex
	num, den int
	seen     int
}

func (s *sampler) set(num, den int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if num <= 0 || den <= 0 {
		num, den = 0, 0
	}
	s.num, s.den = min(num, den), den
	s.seen = 0
}

func (s *sampler) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.den == 0 {
		return true
	}
	s.seen = s.seen%s.den + 1
	return s.seen <= s.num
}

// debugRatio reads logging.debug_sample: "n/d", or "d" for 1/d. "0" turns
// sampling off; anything unparsable keeps the 1/50 default.
func debugRatio(cfg *coreconfig.Config) (int, int) {
	if cfg == nil {
		return 1, 50
	}
	spec := strings.TrimSpace(cfg.Logging.DebugSample)
	if spec == "" {
		return 1, 50
	}
	numStr, denStr, ratio := strings.Cut(spec, "/")
	if !ratio {
		numStr, denStr = "1", spec
	}
	num, err1 := strconv.Atoi(strings.TrimSpace(numStr))
	den, err2 := strconv.Atoi(strings.TrimSpace(denStr))
	switch {
	case err1 != nil || err2 != nil:
		return 1, 50
	case num <= 0 || den <= 0:
		return 0, 0
	}
	return num, den
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
