package gamification

// DefaultLevelSize is the XP span of one level.
const DefaultLevelSize int64 = 100

// Levels is the pure level calculator: every level spans Size XP, so
// LevelOf(xp) = xp/Size + 1.
type Levels struct {
	Size int64
}

// NewLevels returns a calculator for the given level size. A non-positive
// size falls back to DefaultLevelSize.
func NewLevels(size int64) Levels {
	if size <= 0 {
		size = DefaultLevelSize
	}
	return Levels{Size: size}
}

func (l Levels) size() int64 {
	if l.Size <= 0 {
		return DefaultLevelSize
	}
	return l.Size
}

// LevelOf returns the level for a total XP amount. Negative totals are
// treated as zero.
func (l Levels) LevelOf(totalXP int64) int {
	if totalXP < 0 {
		totalXP = 0
	}
	return int(totalXP/l.size()) + 1
}

// XPForLevel returns the cumulative XP required to reach level.
func (l Levels) XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(level-1) * l.size()
}

// ProgressWithinLevel returns the XP earned inside the current level and
// the percentage of the level completed (0.0–100.0).
func (l Levels) ProgressWithinLevel(totalXP int64) (int64, float64) {
	if totalXP < 0 {
		totalXP = 0
	}
	in := totalXP % l.size()
	return in, float64(in) / float64(l.size()) * 100.0
}

// XPToNextLevel returns XP remaining until the next level.
func (l Levels) XPToNextLevel(totalXP int64) int64 {
	in, _ := l.ProgressWithinLevel(totalXP)
	return l.size() - in
}

// LevelProgress is the display view of a total XP amount.
type LevelProgress struct {
	Level   int     `json:"level"`
	InLevel int64   `json:"xp_in_level"`
	ToNext  int64   `json:"xp_to_next_level"`
	Percent float64 `json:"percent"`
	Size    int64   `json:"level_size"`
}

// Progress returns the level view for totalXP.
func (l Levels) Progress(totalXP int64) LevelProgress {
	in, pct := l.ProgressWithinLevel(totalXP)
	return LevelProgress{
		Level:   l.LevelOf(totalXP),
		InLevel: in,
		ToNext:  l.XPToNextLevel(totalXP),
		Percent: pct,
		Size:    l.size(),
	}
}
