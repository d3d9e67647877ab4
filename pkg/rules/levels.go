package rules

// Risk levels of the oil-spill family.
const (
	LevelLow        = "LOW"
	LevelMedium     = "MEDIUM"
	LevelMediumHigh = "MEDIUM_HIGH"
	LevelHigh       = "HIGH"
	LevelCritical   = "CRITICAL"
)

// levelRank orders levels within each family so floors and cross-validation
// can compare strictness. Unknown levels rank lowest.
var levelRank = map[string]int{
	LevelLow:        1,
	LevelMedium:     2,
	LevelMediumHigh: 3,
	LevelHigh:       4,
	LevelCritical:   5,
	"R1":            1,
	"R2":            2,
	"R3":            3,
	"R4":            4,
	"R5":            5,
}

// KnownLevel reports whether level belongs to either level family.
func KnownLevel(level string) bool {
	_, ok := levelRank[level]
	return ok
}

// Rank returns the severity rank of a level, 1 (lowest) through 5.
// Unknown levels rank 0.
func Rank(level string) int {
	return levelRank[level]
}

// Stricter returns the stricter of two levels; ties return the first.
func Stricter(a, b string) string {
	if levelRank[b] > levelRank[a] {
		return b
	}
	return a
}
